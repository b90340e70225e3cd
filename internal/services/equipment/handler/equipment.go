package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"rentflow-system/internal/apperr"
	"rentflow-system/internal/database/models"
	"rentflow-system/internal/logger"
	"rentflow-system/internal/matching"
	"rentflow-system/internal/utils"
)

const (
	EQUIPMENT_CACHE_PREFIX = "equipment:"
	EQUIPMENT_CATALOG_KEY  = "equipment:catalog"
	CACHE_TTL_MEDIUM       = 30 * time.Minute
)

type EquipmentInput struct {
	Name        string       `json:"name" binding:"required"`
	Description string       `json:"description"`
	DailyRate   utils.Number `json:"daily_rate"`
	WeeklyRate  utils.Number `json:"weekly_rate"`
	MonthlyRate utils.Number `json:"monthly_rate"`
	IsActive    *bool        `json:"is_active"`
}

func (in EquipmentInput) validate() error {
	v := &apperr.ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		v.Add("name", "is required")
	}
	checkRate(v, "daily_rate", in.DailyRate, true)
	checkRate(v, "weekly_rate", in.WeeklyRate, false)
	checkRate(v, "monthly_rate", in.MonthlyRate, false)
	return v.OrNil()
}

func checkRate(v *apperr.ValidationError, field string, n utils.Number, required bool) {
	switch {
	case !n.Provided():
		if required {
			v.Add(field, "is required")
		}
	case !n.IsSet():
		v.Add(field, "must be a number")
	case n.Decimal().IsNegative():
		v.Add(field, "must not be negative")
	}
}

type ListEquipmentParams struct {
	Search   string `form:"search"`
	IsActive *bool  `form:"is_active"`
	utils.PageRequest
}

type EquipmentHandler struct {
	db    *gorm.DB
	redis *redis.Client
	log   zerolog.Logger
}

func NewEquipmentHandler(db *gorm.DB, redisClient *redis.Client) *EquipmentHandler {
	return &EquipmentHandler{
		db:    db,
		redis: redisClient,
		log:   logger.WithComponent("equipment"),
	}
}

func (s *EquipmentHandler) InvalidateEquipmentCaches(ctx context.Context, ids ...int64) {
	if s.redis == nil {
		return
	}
	keys := []string{EQUIPMENT_CATALOG_KEY}
	for _, id := range ids {
		keys = append(keys, fmt.Sprintf("%s%d", EQUIPMENT_CACHE_PREFIX, id))
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		s.log.Warn().Err(err).Msg("failed to invalidate equipment cache")
	}
}

func (s *EquipmentHandler) CreateEquipment(ctx context.Context, in EquipmentInput) (*models.Equipment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	equipment := models.Equipment{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		DailyRate:   in.DailyRate.Decimal().Round(2),
		WeeklyRate:  in.WeeklyRate.Decimal().Round(2),
		MonthlyRate: in.MonthlyRate.Decimal().Round(2),
		IsActive:    active,
	}
	if err := s.db.WithContext(ctx).Create(&equipment).Error; err != nil {
		return nil, fmt.Errorf("failed to create equipment: %w", err)
	}

	s.InvalidateEquipmentCaches(ctx)
	return &equipment, nil
}

func (s *EquipmentHandler) GetEquipment(ctx context.Context, id int64) (*models.Equipment, error) {
	var equipment models.Equipment
	if err := s.db.WithContext(ctx).First(&equipment, id).Error; err != nil {
		return nil, apperr.FromDB(err, "equipment", id)
	}
	return &equipment, nil
}

func (s *EquipmentHandler) UpdateEquipment(ctx context.Context, id int64, in EquipmentInput) (*models.Equipment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	equipment, err := s.GetEquipment(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"name":         strings.TrimSpace(in.Name),
		"description":  strings.TrimSpace(in.Description),
		"daily_rate":   in.DailyRate.Decimal().Round(2),
		"weekly_rate":  in.WeeklyRate.Decimal().Round(2),
		"monthly_rate": in.MonthlyRate.Decimal().Round(2),
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if err := s.db.WithContext(ctx).Model(equipment).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update equipment: %w", err)
	}

	s.InvalidateEquipmentCaches(ctx, id)
	return s.GetEquipment(ctx, id)
}

// SetActive toggles catalog visibility without touching invoice history.
func (s *EquipmentHandler) SetActive(ctx context.Context, id int64, active bool) (*models.Equipment, error) {
	equipment, err := s.GetEquipment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(equipment).Update("is_active", active).Error; err != nil {
		return nil, fmt.Errorf("failed to update equipment: %w", err)
	}
	s.InvalidateEquipmentCaches(ctx, id)
	equipment.IsActive = active
	return equipment, nil
}

// DeleteEquipment removes the catalog row. Invoice lines keep their own rate and
// description and lose only the reference.
func (s *EquipmentHandler) DeleteEquipment(ctx context.Context, id int64) error {
	if _, err := s.GetEquipment(ctx, id); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.InvoiceItem{}).Where("equipment_id = ?", id).Update("equipment_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach invoice items: %w", err)
		}
		return tx.Delete(&models.Equipment{}, id).Error
	})
	if err != nil {
		return err
	}

	s.InvalidateEquipmentCaches(ctx, id)
	return nil
}

func (s *EquipmentHandler) ListEquipment(ctx context.Context, params ListEquipmentParams) ([]models.Equipment, utils.PageMeta, error) {
	var items []models.Equipment
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Equipment{})
	if params.IsActive != nil {
		query = query.Where("is_active = ?", *params.IsActive)
	}
	if params.Search != "" {
		term := utils.LikePattern(params.Search)
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", term, term)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, utils.PageMeta{}, fmt.Errorf("failed to count equipment: %w", err)
	}

	page := params.PageRequest.Normalize()
	if err := query.Order("name asc").Offset(page.Offset()).Limit(page.PageSize).Find(&items).Error; err != nil {
		return nil, utils.PageMeta{}, fmt.Errorf("failed to list equipment: %w", err)
	}

	return items, utils.NewPageMeta(page, total), nil
}

// ActiveCatalog returns every active item in the shape the matcher consumes.
// The list is cached when redis is available.
func (s *EquipmentHandler) ActiveCatalog(ctx context.Context) ([]matching.Item, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, EQUIPMENT_CATALOG_KEY).Bytes()
		if err == nil {
			var items []matching.Item
			if err := json.Unmarshal(cached, &items); err == nil {
				return items, nil
			}
		} else if err != redis.Nil {
			s.log.Warn().Err(err).Msg("catalog cache read failed")
		}
	}

	var rows []models.Equipment
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	items := make([]matching.Item, len(rows))
	for i, row := range rows {
		items[i] = matching.Item{
			ID:          row.ID,
			Name:        row.Name,
			Description: row.Description,
			Rate:        row.DailyRate,
		}
	}

	if s.redis != nil {
		if payload, err := json.Marshal(items); err == nil {
			if err := s.redis.Set(ctx, EQUIPMENT_CATALOG_KEY, payload, CACHE_TTL_MEDIUM).Err(); err != nil {
				s.log.Warn().Err(err).Msg("catalog cache write failed")
			}
		}
	}

	return items, nil
}

// RatesByID loads the referenced equipment; any missing id is reported as not found.
func (s *EquipmentHandler) RatesByID(ctx context.Context, ids []int64) (map[int64]models.Equipment, error) {
	return LoadEquipment(s.db.WithContext(ctx), ids)
}

func LoadEquipment(db *gorm.DB, ids []int64) (map[int64]models.Equipment, error) {
	out := make(map[int64]models.Equipment, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []models.Equipment
	if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load equipment: %w", err)
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, apperr.NotFound("equipment", id)
		}
	}
	return out, nil
}
