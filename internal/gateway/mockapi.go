package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// MockAPI — мок платёжного шлюза, который система использует как внешний
// стенд. Оплата проходит, если числовое значение карты чётное и номер не
// оканчивается на ноль. Каждому ответу предшествует фиксированная задержка,
// имитирующая латентность шлюза.
type MockAPI struct {
	delay time.Duration
}

// NewMockAPI создаёт мок шлюза с указанной задержкой ответа.
func NewMockAPI(delay time.Duration) *MockAPI {
	return &MockAPI{delay: delay}
}

// Pay обрабатывает запрос оплаты.
func (m *MockAPI) Pay(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !req.Valid() {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if m.delay > 0 {
		timer := time.NewTimer(m.delay)
		defer timer.Stop()
		select {
		case <-r.Context().Done():
			return
		case <-timer.C:
		}
	}

	card, err := strconv.ParseInt(req.BankCard, 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	status := PaymentStatus{OrderNumber: req.OrderNumber}

	w.Header().Set("Content-Type", "application/json")
	if card%2 == 0 && req.BankCard[len(req.BankCard)-1] != '0' {
		status.Status = StatusPaid
		w.WriteHeader(http.StatusOK)
	} else {
		status.Status = "error"
		w.WriteHeader(http.StatusBadRequest)
	}

	_ = json.NewEncoder(w).Encode(status)
}
