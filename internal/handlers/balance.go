package handlers

import (
	"net/http"
	"time"

	"github.com/valecashback/valecashback/internal/handlers/render"
	"github.com/valecashback/valecashback/internal/handlers/userctx"
	"github.com/valecashback/valecashback/internal/logger"
)

func handleUserBalance(userService userService, l logger.Logger) http.Handler {
	type response struct {
		Current   float64 `json:"current"`
		Earned    float64 `json:"earned"`
		Withdrawn float64 `json:"withdrawn"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		balance, err := userService.GetBalance(r.Context(), user.ID)

		switch err {
		case nil:
			current, _ := balance.Current.Float64()
			earned, _ := balance.Earned.Float64()
			withdrawn, _ := balance.Withdrawn.Float64()
			render.JSON(w, response{current, earned, withdrawn})
		default:
			l.Error("Failed to get balance", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleListTransactions(userService userService, l logger.Logger) http.Handler {
	type transaction struct {
		Code        string    `json:"code"`
		Type        string    `json:"type"`
		Amount      float64   `json:"amount"`
		ProcessedAt time.Time `json:"processed_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		tr, err := userService.GetTransactions(r.Context(), user.ID)

		switch err {
		case nil:
			transactions := make([]transaction, 0, len(tr))
			for _, t := range tr {
				amount, _ := t.Amount.Float64()
				transactions = append(transactions, transaction{
					Code:        t.TokenCode,
					Type:        t.Type,
					Amount:      amount,
					ProcessedAt: t.ProcessedAt,
				})
			}
			render.JSON(w, transactions)
		default:
			l.Error("Failed to get transactions", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
