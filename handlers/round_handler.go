package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/debate-tab/services"
)

type RoundHandler struct {
	pairingService     services.PairingService
	resultService      services.ResultService
	progressionService services.ProgressionService
}

func NewRoundHandler(ps services.PairingService, rs services.ResultService, prs services.ProgressionService) *RoundHandler {
	return &RoundHandler{
		pairingService:     ps,
		resultService:      rs,
		progressionService: prs,
	}
}

// PairRoundHandler godoc
// @Summary Жеребьёвка отборочного раунда
// @Description Распределяет команды по комнатам. Повторный вызов возвращает те же комнаты.
// @Tags rounds
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Param roundNumber path int true "Round number"
// @Success 200 {object} services.RoundView
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Security BearerAuth
// @Router /tournaments/{tournamentID}/rounds/{roundNumber}/pair [post]
func (h *RoundHandler) PairRoundHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	number, err := getIDFromURL(r, "roundNumber")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	view, err := h.pairingService.PairRound(r.Context(), tournamentID, number)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, view, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetRoundHandler godoc
// @Summary Комнаты и результаты раунда
// @Tags rounds
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Param roundNumber path int true "Round number"
// @Success 200 {object} services.RoundView
// @Failure 404 {object} map[string]string
// @Router /tournaments/{tournamentID}/rounds/{roundNumber} [get]
func (h *RoundHandler) GetRoundHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	number, err := getIDFromURL(r, "roundNumber")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	view, err := h.pairingService.GetRound(r.Context(), tournamentID, number)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, view, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type submitResultsRequest struct {
	Rooms []services.RoomResultInput `json:"rooms"`
}

// SubmitResultsHandler godoc
// @Summary Внести результаты раунда
// @Description Сохраняет результаты комнат и закрывает раунд, если все результаты внесены.
// @Tags rounds
// @Accept json
// @Produce json
// @Param roundID path int true "Round ID"
// @Param body body submitResultsRequest true "Результаты по комнатам"
// @Success 200 {object} services.SubmitOutcome
// @Failure 409 {object} map[string]interface{} "Не хватает результатов (сохранённые остаются)"
// @Failure 422 {object} map[string]string "Некорректные результаты"
// @Security BearerAuth
// @Router /rounds/{roundID}/results [post]
func (h *RoundHandler) SubmitResultsHandler(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input submitResultsRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.resultService.SubmitResults(r.Context(), roundID, input.Rooms)
	if err != nil {
		if errors.Is(err, services.ErrIncompleteResults) && outcome != nil {
			env := jsonResponse{"error": err.Error(), "stored": outcome.Stored, "missing": outcome.Missing}
			if werr := writeJSON(w, http.StatusConflict, env, nil); werr != nil {
				serverErrorResponse(w, r, werr)
			}
			return
		}
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, outcome, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RoundHandler) CloseRoundHandler(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	view, err := h.resultService.CloseRound(r.Context(), roundID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, view, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// AdvanceHandler godoc
// @Summary Перейти к следующему этапу турнира
// @Description Жеребьёвка следующего отборочного раунда, посев или продвижение плей-офф, либо определение чемпиона.
// @Tags progression
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Success 200 {object} services.Progress
// @Failure 409 {object} map[string]string
// @Security BearerAuth
// @Router /tournaments/{tournamentID}/advance [post]
func (h *RoundHandler) AdvanceHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	progress, err := h.progressionService.AdvanceTournament(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, progress, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RoundHandler) StateHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	progress, err := h.progressionService.CurrentState(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, progress, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
