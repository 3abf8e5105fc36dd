package main

import (
	"errors"
	"strings"
	"testing"
)

func mustKeyRef(t *testing.T, token string) CardRef {
	t.Helper()
	ref, _ := ParseToken(token, testTrackerDomain)
	if ref.Kind != RefKey {
		t.Fatalf("token %q did not parse as a key", token)
	}
	return ref
}

func TestResolveCardOpaqueDirectLookup(t *testing.T) {
	fake := newFakeTracker(t)
	fake.cards["abc12345"] = detailCard("abc12345", "BOK-12", 12, "Direct", "field-1")
	_, gw := fake.start(t)

	card, found, err := ResolveCard(gw, CardRef{Kind: RefOpaqueID, ID: "abc12345"}, "", []string{"b1"}, 5)
	if err != nil {
		t.Fatalf("ResolveCard failed: %v", err)
	}
	if !found || card.ID != "abc12345" {
		t.Fatalf("ResolveCard = %+v found=%v", card, found)
	}
	// Direct lookup must not trigger any board scan.
	if got := requestCount(fake.requestLog(), "/api/v1/cards?"); got != 0 {
		t.Fatalf("opaque resolution made %d list calls, want 0", got)
	}

	_, found, err = ResolveCard(gw, CardRef{Kind: RefOpaqueID, ID: "missing0000"}, "", []string{"b1"}, 5)
	if err != nil {
		t.Fatalf("ResolveCard(missing) error = %v, want nil", err)
	}
	if found {
		t.Fatal("ResolveCard(missing) found=true, want false")
	}
}

func TestResolveCardKeyScansConfiguredScopes(t *testing.T) {
	fake := newFakeTracker(t)
	fake.boards["b1"] = []cardPayload{listingCard("other0001", "BOK-1", 1, "Other")}
	fake.boards["b2"] = []cardPayload{
		listingCard("other0002", "BOK-2", 2, "Other"),
		listingCard("match0001", "BOK-5106", 5106, "The card"),
	}
	fake.cards["match0001"] = detailCard("match0001", "BOK-5106", 5106, "The card", "field-1")
	_, gw := fake.start(t)

	card, found, err := ResolveCard(gw, mustKeyRef(t, "BOK-5106"), "", []string{"b1", "b2"}, 5)
	if err != nil {
		t.Fatalf("ResolveCard failed: %v", err)
	}
	if !found || card.ID != "match0001" {
		t.Fatalf("ResolveCard = %+v found=%v, want match0001", card, found)
	}
}

func TestResolveCardDeniedScopeIsSkipped(t *testing.T) {
	fake := newFakeTracker(t)
	fake.deniedBoards["b1"] = true
	fake.boards["b2"] = []cardPayload{listingCard("match0001", "BOK-7", 7, "Found anyway")}
	fake.cards["match0001"] = detailCard("match0001", "BOK-7", 7, "Found anyway", "field-1")
	_, gw := fake.start(t)

	card, found, err := ResolveCard(gw, mustKeyRef(t, "BOK-7"), "", []string{"b1", "b2"}, 5)
	if err != nil {
		t.Fatalf("ResolveCard failed: %v", err)
	}
	if !found || card.ID != "match0001" {
		t.Fatalf("denied scope aborted resolution: %+v found=%v", card, found)
	}
}

func TestResolveCardScopeHintScansFirst(t *testing.T) {
	fake := newFakeTracker(t)
	fake.boards["hinted"] = []cardPayload{listingCard("match0001", "BOK-3", 3, "Hinted")}
	fake.boards["b1"] = []cardPayload{listingCard("decoy0001", "BOK-3", 3, "Decoy")}
	fake.cards["match0001"] = detailCard("match0001", "BOK-3", 3, "Hinted", "field-1")
	fake.cards["decoy0001"] = detailCard("decoy0001", "BOK-3", 3, "Decoy", "field-1")
	_, gw := fake.start(t)

	card, found, err := ResolveCard(gw, mustKeyRef(t, "BOK-3"), "hinted", []string{"b1"}, 5)
	if err != nil {
		t.Fatalf("ResolveCard failed: %v", err)
	}
	if !found || card.ID != "match0001" {
		t.Fatalf("hint scope was not preferred: %+v", card)
	}

	// First match wins: the configured scope is never scanned.
	for _, req := range fake.requestLog() {
		if strings.Contains(req, "boardId=b1") {
			t.Fatalf("configured scope scanned despite hint match: %v", fake.requestLog())
		}
	}
}

func TestResolveCardHintAlreadyConfiguredKeepsOrder(t *testing.T) {
	got := scanOrder("b2", []string{"b1", "b2"})
	want := []string{"b1", "b2"}
	if len(got) != len(want) {
		t.Fatalf("scanOrder = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("scanOrder = %v, want %v", got, want)
		}
	}
}

func TestResolveCardVerifiesPrefixViaDetailFetch(t *testing.T) {
	// The listing omits the key; the sequence matches but the detail fetch
	// reveals a different prefix, so the candidate must be rejected.
	fake := newFakeTracker(t)
	fake.boards["b1"] = []cardPayload{listingCard("nokey0001", "", 42, "Wrong prefix")}
	fake.cards["nokey0001"] = detailCard("nokey0001", "ZAP-42", 42, "Wrong prefix", "field-1")
	_, gw := fake.start(t)

	_, found, err := ResolveCard(gw, mustKeyRef(t, "BOK-42"), "", []string{"b1"}, 5)
	if err != nil {
		t.Fatalf("ResolveCard failed: %v", err)
	}
	if found {
		t.Fatal("accepted a card whose detail prefix does not match")
	}
	if got := requestCount(fake.requestLog(), "/api/v1/cards/nokey0001"); got != 1 {
		t.Fatalf("expected exactly 1 detail fetch, got %d", got)
	}
}

func TestResolveCardListingPrefixMismatchSkipsDetailFetch(t *testing.T) {
	fake := newFakeTracker(t)
	fake.boards["b1"] = []cardPayload{listingCard("zap00001", "ZAP-42", 42, "Zap")}
	_, gw := fake.start(t)

	_, found, err := ResolveCard(gw, mustKeyRef(t, "BOK-42"), "", []string{"b1"}, 5)
	if err != nil {
		t.Fatalf("ResolveCard failed: %v", err)
	}
	if found {
		t.Fatal("accepted a card with mismatched listing prefix")
	}
	if got := requestCount(fake.requestLog(), "/api/v1/cards/"); got != 0 {
		t.Fatalf("listing mismatch still fetched detail %d times", got)
	}
}

func TestResolveCardHonorsPageBound(t *testing.T) {
	fake := newFakeTracker(t)
	fake.pageSize = 1
	fake.boards["b1"] = []cardPayload{
		listingCard("page1card", "BOK-1", 1, "Page 1"),
		listingCard("page2card", "BOK-2", 2, "Page 2"),
		listingCard("page3card", "BOK-3", 3, "Page 3"),
	}
	fake.cards["page3card"] = detailCard("page3card", "BOK-3", 3, "Page 3", "field-1")
	_, gw := fake.start(t)

	_, found, err := ResolveCard(gw, mustKeyRef(t, "BOK-3"), "", []string{"b1"}, 2)
	if err != nil {
		t.Fatalf("ResolveCard failed: %v", err)
	}
	if found {
		t.Fatal("match beyond the page bound should not be found")
	}
	if got := requestCount(fake.requestLog(), "/api/v1/cards?"); got != 2 {
		t.Fatalf("expected 2 list calls under bound, got %d", got)
	}

	card, found, err := ResolveCard(gw, mustKeyRef(t, "BOK-3"), "", []string{"b1"}, 5)
	if err != nil {
		t.Fatalf("ResolveCard failed: %v", err)
	}
	if !found || card.ID != "page3card" {
		t.Fatalf("raised bound did not find the card: %+v found=%v", card, found)
	}
}

func TestResolveCardIdempotent(t *testing.T) {
	fake := newFakeTracker(t)
	fake.boards["b1"] = []cardPayload{listingCard("match0001", "BOK-9", 9, "Stable")}
	fake.cards["match0001"] = detailCard("match0001", "BOK-9", 9, "Stable", "field-1")
	_, gw := fake.start(t)

	first, found1, err1 := ResolveCard(gw, mustKeyRef(t, "BOK-9"), "", []string{"b1"}, 5)
	second, found2, err2 := ResolveCard(gw, mustKeyRef(t, "BOK-9"), "", []string{"b1"}, 5)
	if err1 != nil || err2 != nil {
		t.Fatalf("ResolveCard errors: %v, %v", err1, err2)
	}
	if !found1 || !found2 || first.ID != second.ID {
		t.Fatalf("resolution not idempotent: %q vs %q", first.ID, second.ID)
	}
}

func TestResolveCardGatewayFailurePropagates(t *testing.T) {
	fake := newFakeTracker(t)
	fake.failStatus["/cards"] = 500
	_, gw := fake.start(t)

	_, _, err := ResolveCard(gw, mustKeyRef(t, "BOK-1"), "", []string{"b1"}, 5)
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("error = %v, want *GatewayError", err)
	}
}
