package handlers

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/catenax-ng/product-agents-edc-sub000/api"
	"github.com/catenax-ng/product-agents-edc-sub000/skill"
	"github.com/catenax-ng/product-agents-edc-sub000/types"
)

// SkillHandler serves /api/v1/skills.
type SkillHandler struct {
	store  skill.Store
	logger *zap.Logger
}

// NewSkillHandler 创建技能处理器
func NewSkillHandler(store skill.Store, logger *zap.Logger) *SkillHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SkillHandler{store: store, logger: logger.With(zap.String("component", "skill_handler"))}
}

// HandleSkills dispatches by method. GET without a name lists the stored
// skill names.
func (h *SkillHandler) HandleSkills(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	switch r.Method {
	case http.MethodGet:
		if name == "" {
			h.handleList(w, r)
			return
		}
		h.handleGet(w, r, name)
	case http.MethodPut:
		h.handlePut(w, r, name)
	case http.MethodDelete:
		h.handleDelete(w, r, name)
	default:
		methodNotAllowed(w, h.logger, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// @Summary 保存技能
// @Tags 技能
// @Accept json
// @Param name query string true "技能资产 ID"
// @Param request body api.SkillRequest true "技能文本"
// @Success 200 {object} skill.Skill
// @Router /api/v1/skills [put]
func (h *SkillHandler) handlePut(w http.ResponseWriter, r *http.Request, name string) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.SkillRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	s := skill.Skill{
		Name:         name,
		Text:         req.Text,
		Description:  req.Description,
		Distribution: req.Distribution,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := skill.Validate(&s); err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	if err := h.store.Put(r.Context(), s); err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	h.logger.Info("skill stored", zap.String("name", name), zap.String("distribution", string(s.Distribution)))
	WriteSuccess(w, s)
}

func (h *SkillHandler) handleGet(w http.ResponseWriter, r *http.Request, name string) {
	s, err := h.store.Get(r.Context(), name)
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, s)
}

func (h *SkillHandler) handleDelete(w http.ResponseWriter, r *http.Request, name string) {
	if name == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrValidation, "name query parameter is required", h.logger)
		return
	}
	removed, err := h.store.Delete(r.Context(), name)
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	if !removed {
		WriteError(w, types.NewError(types.ErrNotFound, "skill not found").WithTarget(name), h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"name": name, "deleted": true})
}

func (h *SkillHandler) handleList(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.List(r.Context())
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	if names == nil {
		names = []string{}
	}
	WriteSuccess(w, api.SkillListResponse{Skills: names, Total: len(names)})
}
