package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/zk-escrow/commitment"
	"github.com/vocdoni/zk-escrow/types"
)

// commitments lists every known commitment, spent or not
// GET /commitments
func (a *API) commitments(w http.ResponseWriter, r *http.Request) {
	all, err := a.storage.All(false)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, commitmentsView(all))
}

// commitmentsByState lists the commitments of a state variable, given the
// variable name and the mapping key
// GET /commitments/{name}/{mappingKey}
func (a *API) commitmentsByState(w http.ResponseWriter, r *http.Request) {
	mappingKey, err := types.ParseField(chi.URLParam(r, MappingKeyURLParam))
	if err != nil {
		ErrMalformedMappingKey.WithErr(err).Write(w)
		return
	}
	cs, err := a.storage.ByState(chi.URLParam(r, StateNameURLParam), mappingKey)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, commitmentsView(cs))
}

func commitmentsView(cs []*commitment.Commitment) *Commitments {
	res := &Commitments{Commitments: make([]*Commitment, 0, len(cs))}
	for _, c := range cs {
		res.Commitments = append(res.Commitments, commitmentView(c))
	}
	return res
}
