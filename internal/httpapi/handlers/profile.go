package handlers

import (
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/cortexhq/cortex-server/internal/common"
	"github.com/cortexhq/cortex-server/internal/profile"
)

func (h *Handler) GetProfile(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	p, err := h.Profiles.Load(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if p == nil {
		common.OK(c, gin.H{"profile": nil})
		return
	}
	common.OK(c, gin.H{"profile": p})
}

type updateProfileReq struct {
	Nickname   *string  `json:"nickname"`
	Age        *int     `json:"age"`
	Gender     *string  `json:"gender"`
	Height     *float64 `json:"height"`
	HeightUnit *string  `json:"height_unit"`
	Weight     *float64 `json:"weight"`
	WeightUnit *string  `json:"weight_unit"`
	Bio        *string  `json:"bio"`
	AvatarURL  *string  `json:"avatar_url"`
}

// UpdateProfile replaces the caller's profile. Field lengths are bounded
// here so oversized attributes can never reach the prompt composer.
func (h *Handler) UpdateProfile(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req updateProfileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Nickname != nil && utf8.RuneCountInString(*req.Nickname) > 64 {
		common.Fail(c, http.StatusBadRequest, 10005, "nickname too long")
		return
	}
	if req.Bio != nil && utf8.RuneCountInString(*req.Bio) > 2000 {
		common.Fail(c, http.StatusBadRequest, 10005, "bio too long")
		return
	}
	if req.Age != nil && (*req.Age < 0 || *req.Age > 150) {
		common.Fail(c, http.StatusBadRequest, 10005, "invalid age")
		return
	}

	p := &profile.Profile{
		ID:         uid,
		Nickname:   req.Nickname,
		Age:        req.Age,
		Gender:     req.Gender,
		Height:     req.Height,
		HeightUnit: req.HeightUnit,
		Weight:     req.Weight,
		WeightUnit: req.WeightUnit,
		Bio:        req.Bio,
		AvatarURL:  req.AvatarURL,
	}
	if err := h.Profiles.Upsert(c.Request.Context(), p); err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{"profile": p})
}
