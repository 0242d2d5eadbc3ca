package server

import (
	"encoding/json"
	"net/http"

	"github.com/mlgrupo/convert/ledger"
	"github.com/mlgrupo/convert/models"
)

type ledgerListResponse struct {
	Items []models.ProcessedItem `json:"items"`
	Stats models.LedgerStats     `json:"stats"`
}

// listLedger returns every processed item, oldest first.
func listLedger(l *ledger.Ledger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ledgerListResponse{
			Items: l.ListAll(),
			Stats: l.Stats(),
		})
	})
}

// getLedgerItem returns one processed item by its source identity.
func getLedgerItem(l *ledger.Ledger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		matches := ledgerItemRoute.FindStringSubmatch(r.URL.Path)
		if len(matches) < 2 {
			notFound(w, new404(r))
			return
		}
		item := l.GetByID(matches[1])
		if item == nil {
			notFound(w, new404(r))
			return
		}
		json.NewEncoder(w).Encode(item)
	})
}

type ledgerRemoveResponse struct {
	Removed bool   `json:"removed"`
	ID      string `json:"id"`
}

// removeLedgerItem forgets a processed item, allowing the source to be
// processed again.
func removeLedgerItem(l *ledger.Ledger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		matches := ledgerItemRoute.FindStringSubmatch(r.URL.Path)
		if len(matches) < 2 {
			notFound(w, new404(r))
			return
		}
		id := matches[1]
		removed, err := l.Remove(id)
		if err != nil {
			writeServerError(w, r, err)
			return
		}
		if !removed {
			notFound(w, new404(r))
			return
		}
		json.NewEncoder(w).Encode(ledgerRemoveResponse{Removed: true, ID: id})
	})
}
