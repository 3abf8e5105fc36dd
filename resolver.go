package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
)

// ResolveCard maps a canonical card reference to at most one remote card.
//
// Opaque ids resolve with a single direct fetch; a denied or missing card is
// a normal not-found outcome. Keys scan board scopes in priority order: the
// URL scope hint first (when not already configured), then the configured
// scopes in their configured order. Each scope is paged up to maxPages; a
// scope the tracker denies is skipped and scanning continues. The first
// candidate whose prefix and sequence verify wins and ends the scan.
func ResolveCard(g *TrackerGateway, ref CardRef, scopeHint string, scopes []string, maxPages int) (Card, bool, error) {
	switch ref.Kind {
	case RefOpaqueID:
		return FetchCard(g, ref.ID)
	case RefKey:
		return resolveKey(g, ref, scanOrder(scopeHint, scopes), maxPages)
	default:
		return Card{}, false, fmt.Errorf("unparseable reference cannot be resolved")
	}
}

func scanOrder(scopeHint string, scopes []string) []string {
	if scopeHint == "" {
		return scopes
	}
	for _, s := range scopes {
		if s == scopeHint {
			return scopes
		}
	}
	ordered := make([]string, 0, len(scopes)+1)
	ordered = append(ordered, scopeHint)
	return append(ordered, scopes...)
}

func resolveKey(g *TrackerGateway, ref CardRef, scopes []string, maxPages int) (Card, bool, error) {
	for _, scope := range scopes {
		card, found, err := scanScope(g, ref, scope, maxPages)
		if errors.Is(err, errScopeDenied) {
			log.Printf("resolve %s-%d: scope %s denied, skipping", ref.Prefix, ref.Sequence, scope)
			continue
		}
		if err != nil {
			return Card{}, false, err
		}
		if found {
			return card, true, nil
		}
	}
	return Card{}, false, nil
}

func scanScope(g *TrackerGateway, ref CardRef, scope string, maxPages int) (Card, bool, error) {
	query := url.Values{"boardId": {scope}}

	for page := 1; page <= maxPages; page++ {
		entities, pageCount, err := g.ListPage("cards", query, page)
		if err != nil {
			return Card{}, false, err
		}
		for _, raw := range entities {
			var payload cardPayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				return Card{}, false, fmt.Errorf("parsing card listing: %w", err)
			}
			if !candidateMatches(payload, ref) {
				continue
			}
			// Listings may omit key and never carry timer fields; one
			// detail fetch verifies prefix+sequence jointly and supplies
			// the fields.
			card, found, err := FetchCard(g, payload.ID)
			if err != nil {
				return Card{}, false, err
			}
			if !found {
				continue
			}
			if card.Prefix != ref.Prefix || card.Sequence != ref.Sequence {
				continue
			}
			return card, true, nil
		}
		if page >= pageCount {
			break
		}
	}
	return Card{}, false, nil
}

func candidateMatches(payload cardPayload, ref CardRef) bool {
	if payload.Key != "" {
		keyRef, ok := parseKey(payload.Key)
		return ok && keyRef.Prefix == ref.Prefix && keyRef.Sequence == ref.Sequence
	}
	return payload.Number == ref.Sequence
}
