package web

import (
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/ops"
	"github.com/hpungsan/mesa/internal/session"
	"github.com/hpungsan/mesa/internal/wallet"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	env      *ops.Env
	renderer *Renderer
}

var phaseNames = []string{
	string(session.PhaseIntro),
	string(session.PhaseChallenge),
	string(session.PhaseRecording),
	string(session.PhaseVoting),
	string(session.PhaseResults),
	string(session.PhaseSummary),
}

// HandleCapsules handles GET /capsules: the catalog.
func (h *Handlers) HandleCapsules(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListCapsules(r.Context(), h.env)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	views := make([]CapsuleView, len(result.Capsules))
	for i, c := range result.Capsules {
		views[i] = CapsuleView{CapsuleSummary: c, DescriptionHTML: renderMarkdown(c.Description)}
	}

	h.renderer.renderPage(w, r, "capsules", CapsulesPageData{
		PageData: h.page("Capsules", "capsules"),
		Capsules: views,
	})
}

// HandleChallenge handles GET /capsules/{id}/challenges/{archetype}: one card.
func (h *Handlers) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	result, err := ops.GetChallenge(r.Context(), h.env, ops.GetChallengeInput{
		CapsuleID:   r.PathValue("id"),
		ArchetypeID: r.PathValue("archetype"),
		Tier:        r.URL.Query().Get("tier"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "challenge", ChallengePageData{
		PageData:   h.page(result.Archetype.Name, "capsules"),
		Card:       result,
		PromptHTML: renderMarkdown(result.Challenge.Prompt),
	})
}

// HandleStartSession handles POST /sessions: start a session from a form.
func (h *Handlers) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	result, err := ops.StartSession(r.Context(), h.env, ops.StartSessionInput{
		CapsuleID: r.FormValue("capsule_id"),
		Tier:      r.FormValue("tier"),
		UserID:    r.FormValue("user_id"),
		Venue:     r.FormValue("venue"),
		Campaign:  r.FormValue("campaign"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) && !isHTMX(r) {
		renderJSON(w, http.StatusCreated, result)
		return
	}
	h.redirect(w, r, sessionPath(result.Session.ID))
}

// HandleSession handles GET /sessions/{id}: the session board.
func (h *Handlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("session ID is required"))
		return
	}

	result, err := ops.GetSession(r.Context(), h.env, ops.GetSessionInput{
		ID:              id,
		IncludeAttempts: !wantsJSON(r) || parseBoolParam(r, "include_attempts"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	data := SessionPageData{
		PageData: h.page("Session "+displayID(result.Session.ID), "sessions"),
		View:     result,
		Phases:   phaseNames,
	}
	if result.Challenge != nil {
		data.PromptHTML = renderMarkdown(result.Challenge.Prompt)
	}
	h.renderer.renderPage(w, r, "session", data)
}

// HandlePhase handles POST /sessions/{id}/phase: move between phases.
func (h *Handlers) HandlePhase(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	id := r.PathValue("id")
	result, err := ops.SetPhase(r.Context(), h.env, ops.SetPhaseInput{
		ID:    id,
		Phase: r.FormValue("phase"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) && !isHTMX(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	h.redirect(w, r, sessionPath(id))
}

// HandleVote handles POST /sessions/{id}/votes: a participant votes for a card.
func (h *Handlers) HandleVote(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	id := r.PathValue("id")
	result, err := ops.CastVote(r.Context(), h.env, ops.CastVoteInput{
		SessionID:     id,
		ParticipantID: r.FormValue("participant_id"),
		CardID:        r.FormValue("card_id"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// HTMX request: return the updated tally
	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<span class="vote-count">` +
			template.HTMLEscapeString(formatVotes(result.Votes, result.VotesNeeded)) + `</span>`))
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	http.Redirect(w, r, sessionPath(id), http.StatusFound)
}

// HandleWallets handles GET /wallets: every user with a wallet.
func (h *Handlers) HandleWallets(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListWallets(r.Context(), h.env)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "wallets", WalletsPageData{
		PageData: h.page("Wallets", "wallets"),
		Users:    result.Users,
	})
}

// HandleWallet handles GET /wallets/{user}: a user's collection.
func (h *Handlers) HandleWallet(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	typ := r.URL.Query().Get("type")

	result, err := ops.ShowWallet(r.Context(), h.env, ops.ShowWalletInput{
		UserID:    user,
		Type:      typ,
		CapsuleID: r.URL.Query().Get("capsule_id"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "wallet", WalletPageData{
		PageData: h.page("Wallet of "+result.UserID, "wallets"),
		Wallet:   result,
		Type:     typ,
		Types:    wallet.AllTypes,
	})
}

// HandleRedeem handles POST /wallets/{user}/redeem: redeem one item.
func (h *Handlers) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	user := r.PathValue("user")
	result, err := ops.Redeem(r.Context(), h.env, ops.RedeemInput{
		UserID: user,
		ItemID: r.FormValue("item_id"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) && !isHTMX(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	h.redirect(w, r, walletPath(user))
}

// HandlePurge handles POST /wallets/purge: drop expired, unredeemed items.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	user := r.FormValue("user_id")
	result, err := ops.PurgeExpired(r.Context(), h.env, ops.PurgeInput{UserID: user})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// HTMX request: return HTML fragment
	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<div class="purge-result">` + template.HTMLEscapeString(result.Message) + `</div>`))
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	target := "/wallets"
	if user != "" {
		target = walletPath(user)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handlers) page(title, nav string) PageData {
	return PageData{Title: title, Version: h.renderer.version, Nav: nav}
}

// redirect sends the client to target, via HX-Redirect for HTMX requests.
func (h *Handlers) redirect(w http.ResponseWriter, r *http.Request, target string) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func sessionPath(id string) string {
	return "/sessions/" + url.PathEscape(id)
}

func walletPath(user string) string {
	return "/wallets/" + url.PathEscape(user)
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}

// displayID truncates long ids for titles.
func displayID(id string) string {
	if len(id) > 10 {
		return id[:10] + "..."
	}
	return id
}

// formatVotes renders a tally as "votes/needed".
func formatVotes(votes, needed int) string {
	if needed <= 0 {
		return strconv.Itoa(votes)
	}
	return strconv.Itoa(votes) + "/" + strconv.Itoa(needed)
}
