package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/api/middleware"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/db/models"
	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/services"
)

type ContractHandler struct {
	contracts *services.ContractService
	logger    *zap.Logger
}

func NewContractHandler(contracts *services.ContractService, logger *zap.Logger) *ContractHandler {
	return &ContractHandler{
		contracts: contracts,
		logger:    logger.With(zap.String("handler", "contracts")),
	}
}

type createContractRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	PartnerID   *uint      `json:"partnerId"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
}

type updateStatusRequest struct {
	Status models.ContractStatus `json:"status"`
}

type setEndDateRequest struct {
	EndDate time.Time `json:"endDate"`
}

func (h *ContractHandler) Create(c *gin.Context) {
	var req createContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fieldErrors(c, map[string]string{"body": "invalid request body"})
		return
	}
	if req.Title == "" {
		fieldErrors(c, map[string]string{"title": "title is required"})
		return
	}
	owner := middleware.CurrentUser(c)
	input := services.ContractInput{
		Title:       req.Title,
		Description: req.Description,
		PartnerID:   req.PartnerID,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	}
	contract, err := h.contracts.Create(c.Request.Context(), owner.ID, input, auditContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Set(middleware.AuditEntityIDKey, strconv.FormatUint(uint64(contract.ID), 10))
	c.JSON(http.StatusCreated, contractResponse(contract))
}

func (h *ContractHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	contract, err := h.contracts.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contractResponse(contract))
}

func (h *ContractHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		fieldErrors(c, map[string]string{"status": "status is required"})
		return
	}
	contract, err := h.contracts.UpdateStatus(c.Request.Context(), id, req.Status, auditContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contractResponse(contract))
}

func (h *ContractHandler) SetEndDate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req setEndDateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.EndDate.IsZero() {
		fieldErrors(c, map[string]string{"endDate": "endDate is required"})
		return
	}
	contract, err := h.contracts.SetEndDate(c.Request.Context(), id, req.EndDate, auditContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contractResponse(contract))
}

func contractResponse(contract *models.Contract) gin.H {
	return gin.H{
		"id":             contract.ID,
		"contractNumber": contract.ContractNumber,
		"title":          contract.Title,
		"description":    contract.Description,
		"status":         contract.Status,
		"partnerId":      contract.PartnerID,
		"ownerId":        contract.OwnerID,
		"startDate":      contract.StartDate,
		"endDate":        contract.EndDate,
		"createdAt":      contract.CreatedAt,
		"updatedAt":      contract.UpdatedAt,
	}
}
