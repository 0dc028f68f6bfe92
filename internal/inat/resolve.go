package inat

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

const autocompletePerPage = "10"

// Resolver turns display names into numeric taxon and place IDs.
type Resolver struct {
	client Requester
}

func NewResolver(client Requester) *Resolver {
	return &Resolver{client: client}
}

// ResolveTaxon looks up a species by scientific or common name.
func (r *Resolver) ResolveTaxon(ctx context.Context, name string) (int64, error) {
	return r.resolve(ctx, "taxa/autocomplete", "taxon", "name", name)
}

// ResolvePlace looks up a place by display name, e.g. "Siskiyou County, CA".
func (r *Resolver) ResolvePlace(ctx context.Context, name string) (int64, error) {
	return r.resolve(ctx, "places/autocomplete", "place", "display_name", name)
}

// resolve picks a case-folded exact name match, then a result whose name
// contains the query, then the first result. Ambiguity is never an error.
func (r *Resolver) resolve(ctx context.Context, endpoint, kind, nameField, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, eris.Errorf("resolve %s: empty name", kind)
	}

	resp, err := r.client.Request(ctx, Request{
		Endpoint: endpoint,
		Params:   url.Values{"q": {name}, "per_page": {autocompletePerPage}},
	})
	if err != nil {
		return 0, err
	}

	var candidates []gjson.Result
	for _, result := range resp.Get("results").Array() {
		if id := result.Get("id"); id.Type == gjson.Number && id.Int() > 0 {
			candidates = append(candidates, result)
		}
	}
	if len(candidates) == 0 {
		return 0, &NotFoundError{Kind: kind, Name: name}
	}

	fold := cases.Fold()
	want := fold.String(name)
	for _, c := range candidates {
		if fold.String(c.Get(nameField).String()) == want {
			zap.L().Info("resolver: found "+kind,
				zap.String("name", c.Get(nameField).String()),
				zap.Int64("id", c.Get("id").Int()),
			)
			return c.Get("id").Int(), nil
		}
	}

	pick := candidates[0]
	for _, c := range candidates {
		if strings.Contains(fold.String(c.Get(nameField).String()), want) {
			pick = c
			break
		}
	}
	zap.L().Info("resolver: no exact match, using closest "+kind,
		zap.String("query", name),
		zap.String("name", pick.Get(nameField).String()),
		zap.Int64("id", pick.Get("id").Int()),
		zap.Int("candidates", len(candidates)),
	)
	return pick.Get("id").Int(), nil
}
