package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mybank/internal/api/middleware"
	"mybank/internal/api/response"
	"mybank/internal/domain"
	"mybank/pkg/logger"
)

type AccountHandler struct {
	ledger domain.LedgerService
	search domain.SearchService
	logger logger.Logger
}

func NewAccountHandler(ledger domain.LedgerService, search domain.SearchService, logger logger.Logger) *AccountHandler {
	return &AccountHandler{
		ledger: ledger,
		search: search,
		logger: logger,
	}
}

func (h *AccountHandler) RegisterRoutes(r chi.Router) {
	r.Get("/customers/{customerId}/accounts", h.ListForOwner)
	r.With(middleware.RequireRoles(h.logger, domain.RoleAdmin)).Post("/accounts", h.CreateAccount)
	r.Get("/accounts/search", h.Search)
	r.Get("/accounts/{accountId}", h.GetAccount)
	r.Get("/accounts/{accountId}/transactions", h.ListTransactions)
	r.Post("/accounts/{accountId}/transactions", h.PostTransaction)
	r.Post("/transfers", h.Transfer)
}

func (h *AccountHandler) ListForOwner(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledger.ListAccountsForOwner(r.Context(), principal(r), chi.URLParam(r, "customerId"))
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, accounts)
}

type createAccountRequest struct {
	OwnerUserID    string       `json:"ownerUserId"`
	AccountType    string       `json:"accountType"`
	InitialBalance domain.Money `json:"initialBalance"`
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := response.Decode(w, r, &req); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	accountType, err := domain.ParseAccountType(req.AccountType)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}

	account, err := h.ledger.CreateAccount(r.Context(), req.OwnerUserID, accountType, req.InitialBalance)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusCreated, account)
}

func (h *AccountHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := domain.AccountSearch{Query: q.Get("query")}

	var err error
	if search.Page, err = optionalInt(q.Get("page")); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	if search.Limit, err = optionalInt(q.Get("limit")); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}

	page, err := h.search.SearchAccounts(r.Context(), principal(r), search)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, page)
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.ledger.GetAccount(r.Context(), principal(r), chi.URLParam(r, "accountId"))
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, account)
}

func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := domain.ParseTransactionFilter(q.Get("type"), q.Get("sort"), q.Get("order"))
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}

	txs, err := h.ledger.ListTransactions(r.Context(), principal(r), chi.URLParam(r, "accountId"), filter)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, txs)
}

type postingRequest struct {
	Type        string       `json:"type"`
	Amount      domain.Money `json:"amount"`
	Description string       `json:"description"`
}

func (h *AccountHandler) PostTransaction(w http.ResponseWriter, r *http.Request) {
	var req postingRequest
	if err := response.Decode(w, r, &req); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	txType, err := domain.ParseTransactionType(req.Type)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}

	tx, err := h.ledger.PostTransaction(r.Context(), principal(r), domain.PostingInput{
		AccountID:   chi.URLParam(r, "accountId"),
		Type:        txType,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusCreated, tx)
}

func (h *AccountHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var input domain.TransferInput
	if err := response.Decode(w, r, &input); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}

	result, err := h.ledger.Transfer(r.Context(), principal(r), input)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusCreated, result)
}

// optionalInt parses a query parameter, treating an empty value as zero.
func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, domain.ErrInvalidInput.WithMessage("%q is not a number", s)
	}
	return n, nil
}
