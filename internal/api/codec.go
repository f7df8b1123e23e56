package api

import (
	"net/http"
	"strings"

	"hospadmin/internal/blackout"
	"hospadmin/internal/policy"
	"hospadmin/internal/weekly"
)

type nameBody struct {
	Name string `json:"name"`
}

type decodedPolicy struct {
	Label     string        `json:"label"`
	HasPolicy bool          `json:"hasPolicy"`
	Policy    policy.Policy `json:"policy"`
}

type weeklyBody struct {
	Text string `json:"text"`
}

// conversionBody carries exception rows or blackout ranges. OffsetMinutes
// overrides the configured offset resolution when set.
type conversionBody struct {
	Timezone      string           `json:"timezone"`
	OffsetMinutes *int             `json:"offsetMinutes"`
	Exceptions    []blackout.Draft `json:"exceptions"`
	Blackouts     []blackout.Range `json:"blackouts"`
}

func (h *Handler) encodePolicy(w http.ResponseWriter, r *http.Request) {
	var p policy.Policy
	if err := decodeJSON(r, &p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	respondJSON(w, http.StatusOK, nameBody{Name: policy.Encode(p)})
}

func (h *Handler) decodePolicy(w http.ResponseWriter, r *http.Request) {
	var body nameBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	respondJSON(w, http.StatusOK, decodedPolicy{
		Label:     policy.Label(body.Name),
		HasPolicy: policy.HasBlock(body.Name),
		Policy:    policy.Decode(body.Name),
	})
}

// normalizeWeekly always answers 200; a text that is not a JSON array is
// reported in the result's error field.
func (h *Handler) normalizeWeekly(w http.ResponseWriter, r *http.Request) {
	var body weeklyBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res := weekly.Normalize(body.Text)
	if res.Windows == nil {
		res.Windows = []weekly.Window{}
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) exceptionsToBlackouts(w http.ResponseWriter, r *http.Request) {
	var body conversionBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	offsetFor := h.svc.Offsets().DraftOffset(tzOrDefault(body.Timezone))
	if body.OffsetMinutes != nil {
		offsetFor = blackout.FixedOffset(*body.OffsetMinutes)
	}
	spans, verrs := blackout.ValidateDrafts(body.Exceptions, offsetFor)
	if len(verrs) > 0 {
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid exceptions", Exceptions: verrs})
		return
	}

	ranges := make([]blackout.Range, len(spans))
	for i, sp := range spans {
		d := body.Exceptions[i]
		ranges[i] = sp.Range(d.ID, strings.TrimSpace(d.Reason))
	}
	respondJSON(w, http.StatusOK, map[string]any{"blackouts": ranges})
}

func (h *Handler) blackoutsToExceptions(w http.ResponseWriter, r *http.Request) {
	var body conversionBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var rows []blackout.Row
	if body.OffsetMinutes != nil {
		rows = blackout.ToExceptions(body.Blackouts, *body.OffsetMinutes)
	} else {
		rows = h.svc.Offsets().Rows(body.Blackouts, tzOrDefault(body.Timezone))
	}
	respondJSON(w, http.StatusOK, map[string]any{"exceptions": rows})
}

func tzOrDefault(tz string) string {
	if strings.TrimSpace(tz) == "" {
		return policy.DefaultTimezone
	}
	return tz
}
