package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"promo-engine/internal/domains/promotion/model"
)

const promotionColumns = `
	id, name, description, type, status, priority,
	starts_at, ends_at,
	usage_limit, usage_limit_per_customer, current_usage_count,
	exclusive_with, version, deleted_at, created_at, updated_at`

// PostgresRepository implements PromotionRepository over pgx.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository wires the repository to a connection pool.
func NewPostgresRepository(db *pgxpool.Pool) PromotionRepository {
	return &PostgresRepository{db: db}
}

func scanPromotion(row pgx.Row) (*model.Promotion, error) {
	var p model.Promotion
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Type,
		&p.Status,
		&p.Priority,
		&p.StartsAt,
		&p.EndsAt,
		&p.UsageLimit,
		&p.UsageLimitPerCustomer,
		&p.CurrentUsageCount,
		&p.ExclusiveWith,
		&p.Version,
		&p.DeletedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// -------------------------------------------------------------------
// READ OPERATIONS
// -------------------------------------------------------------------

func (r *PostgresRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1`

	p, err := scanPromotion(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrPromotionNotFound
		}
		return nil, fmt.Errorf("find promotion by id: %w", err)
	}
	return p, nil
}

// GetActivePromotions returns every non-deleted promotion currently in
// active status. The engine filters further against its own clock.
func (r *PostgresRepository) GetActivePromotions(ctx context.Context) ([]*model.Promotion, error) {
	query := `
		SELECT ` + promotionColumns + `
		FROM promotions
		WHERE status = 'active'
		  AND deleted_at IS NULL
		ORDER BY priority DESC, id ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get active promotions: %w", err)
	}
	defer rows.Close()

	var promos []*model.Promotion
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan active promotion: %w", err)
		}
		promos = append(promos, p)
	}
	return promos, rows.Err()
}

// GetPromotionsForMonitoring returns every non-deleted promotion regardless
// of status. The monitor derives drift and conflicts itself.
func (r *PostgresRepository) GetPromotionsForMonitoring(ctx context.Context) ([]*model.Promotion, error) {
	query := `
		SELECT ` + promotionColumns + `
		FROM promotions
		WHERE deleted_at IS NULL
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get promotions for monitoring: %w", err)
	}
	defer rows.Close()

	var promos []*model.Promotion
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promotion: %w", err)
		}
		promos = append(promos, p)
	}
	return promos, rows.Err()
}

func (r *PostgresRepository) List(ctx context.Context, filter *model.ListPromotionsFilter) ([]*model.Promotion, int, error) {
	where := "WHERE deleted_at IS NULL"
	args := []interface{}{}
	argPos := 1

	if filter.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, *filter.Status)
		argPos++
	}
	if filter.Type != nil {
		where += fmt.Sprintf(" AND type = $%d", argPos)
		args = append(args, *filter.Type)
		argPos++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM promotions " + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count promotions: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := fmt.Sprintf(`
		SELECT %s FROM promotions %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		promotionColumns, where, argPos, argPos+1)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list promotions: %w", err)
	}
	defer rows.Close()

	var promos []*model.Promotion
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan promotion: %w", err)
		}
		promos = append(promos, p)
	}
	return promos, total, rows.Err()
}

const ruleColumns = `
	id, promotion_id, rule_type,
	condition_type, operator, numeric_value, product_ids, category_ids,
	benefit_type, benefit_value, max_discount_amount, applicable_product_ids,
	gift_product_ids, gift_quantities, gift_name, gift_name_quantity,
	min_cart_value, created_at, updated_at`

func scanRule(row pgx.Row) (*model.PromotionRule, error) {
	var rule model.PromotionRule
	err := row.Scan(
		&rule.ID,
		&rule.PromotionID,
		&rule.RuleType,
		&rule.ConditionType,
		&rule.Operator,
		&rule.NumericValue,
		&rule.ProductIDs,
		&rule.CategoryIDs,
		&rule.BenefitType,
		&rule.BenefitValue,
		&rule.MaxDiscountAmount,
		&rule.ApplicableProductIDs,
		&rule.GiftProductIDs,
		&rule.GiftQuantities,
		&rule.GiftName,
		&rule.GiftNameQuantity,
		&rule.MinCartValue,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *PostgresRepository) GetRules(ctx context.Context, promotionID uuid.UUID) ([]*model.PromotionRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM promotion_rules WHERE promotion_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, promotionID)
	if err != nil {
		return nil, fmt.Errorf("get promotion rules: %w", err)
	}
	defer rows.Close()

	var rules []*model.PromotionRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promotion rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// -------------------------------------------------------------------
// LIFECYCLE SUPPORT
// -------------------------------------------------------------------

// GetPromotionsForStatusUpdate returns every promotion whose time-derived
// status differs from the persisted one. Paused promotions are sticky and
// never selected.
func (r *PostgresRepository) GetPromotionsForStatusUpdate(ctx context.Context) ([]*model.Promotion, error) {
	query := `
		SELECT ` + promotionColumns + `
		FROM promotions
		WHERE deleted_at IS NULL
		  AND status <> 'paused'
		  AND status <> CASE
			WHEN NOW() < starts_at THEN 'scheduled'
			WHEN NOW() < ends_at THEN 'active'
			ELSE 'expired'
		  END
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get promotions for status update: %w", err)
	}
	defer rows.Close()

	var promos []*model.Promotion
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promotion for status update: %w", err)
		}
		promos = append(promos, p)
	}
	return promos, rows.Err()
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.PromotionStatus) (bool, error) {
	query := `
		UPDATE promotions
		SET status = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return false, fmt.Errorf("update promotion status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// -------------------------------------------------------------------
// USAGE TRACKING
// -------------------------------------------------------------------

func (r *PostgresRepository) GetCustomerUsageCount(ctx context.Context, promotionID uuid.UUID, customerID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM promotion_usage WHERE promotion_id = $1 AND customer_id = $2`

	var count int
	if err := r.db.QueryRow(ctx, query, promotionID, customerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("get customer usage count: %w", err)
	}
	return count, nil
}

// RecordUsage increments the usage counter and appends the usage record in
// one transaction. The increment is conditionally guarded at the storage
// layer so two concurrent redemptions at the cap cannot both succeed.
func (r *PostgresRepository) RecordUsage(ctx context.Context, usage *model.PromotionUsage) error {
	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin usage transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	increment := `
		UPDATE promotions
		SET current_usage_count = current_usage_count + 1,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND deleted_at IS NULL
		  AND (usage_limit IS NULL OR current_usage_count < usage_limit)
	`
	tag, err := tx.Exec(ctx, increment, usage.PromotionID)
	if err != nil {
		return fmt.Errorf("increment usage count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		limit, current := 0, 0
		if usage.PromotionSnapshot != nil {
			current = usage.PromotionSnapshot.CurrentUsageCount
			if usage.PromotionSnapshot.UsageLimit != nil {
				limit = *usage.PromotionSnapshot.UsageLimit
			}
		}
		return model.NewUsageLimitError(limit, current)
	}

	gifts, err := json.Marshal(usage.FreeGifts)
	if err != nil {
		return fmt.Errorf("marshal gift snapshot: %w", err)
	}
	snapshot, err := json.Marshal(usage.PromotionSnapshot)
	if err != nil {
		return fmt.Errorf("marshal promotion snapshot: %w", err)
	}

	insert := `
		INSERT INTO promotion_usage (
			id, promotion_id, order_id, customer_id,
			discount_amount, free_gifts, cart_subtotal,
			promotion_snapshot, used_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING used_at
	`
	err = tx.QueryRow(ctx, insert,
		usage.ID,
		usage.PromotionID,
		usage.OrderID,
		usage.CustomerID,
		usage.DiscountAmount,
		gifts,
		usage.CartSubtotal,
		snapshot,
	).Scan(&usage.UsedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Duplicate (promotion_id, order_id): the caller retried a
			// non-idempotent recording without a dedup key.
			return fmt.Errorf("duplicate promotion usage for order %s: %w", usage.OrderID, err)
		}
		return fmt.Errorf("insert promotion usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit usage transaction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetUsageStatistics(ctx context.Context) ([]*model.UsageStatistics, error) {
	query := `
		SELECT promotion_id, COUNT(*),
		       COALESCE(AVG(discount_amount), 0),
		       COALESCE(AVG(cart_subtotal), 0)
		FROM promotion_usage
		GROUP BY promotion_id
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get usage statistics: %w", err)
	}
	defer rows.Close()

	var stats []*model.UsageStatistics
	for rows.Next() {
		var s model.UsageStatistics
		if err := rows.Scan(&s.PromotionID, &s.TotalUses, &s.AvgDiscount, &s.AvgOrderSubtotal); err != nil {
			return nil, fmt.Errorf("scan usage statistics: %w", err)
		}
		stats = append(stats, &s)
	}
	return stats, rows.Err()
}

// -------------------------------------------------------------------
// GIFT INVENTORY
// -------------------------------------------------------------------

func (r *PostgresRepository) ValidateGiftProductsWithStock(ctx context.Context, productIDs []uuid.UUID) ([]model.GiftProductStock, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, stock_quantity > 0, stock_quantity
		FROM products
		WHERE id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, productIDs)
	if err != nil {
		return nil, fmt.Errorf("validate gift products: %w", err)
	}
	defer rows.Close()

	found := make(map[uuid.UUID]model.GiftProductStock, len(productIDs))
	for rows.Next() {
		var s model.GiftProductStock
		if err := rows.Scan(&s.ProductID, &s.InStock, &s.AvailableQuantity); err != nil {
			return nil, fmt.Errorf("scan gift product stock: %w", err)
		}
		found[s.ProductID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Unknown products come back explicitly out of stock so the validator
	// can reject them by id.
	result := make([]model.GiftProductStock, 0, len(productIDs))
	for _, id := range productIDs {
		if s, ok := found[id]; ok {
			result = append(result, s)
		} else {
			result = append(result, model.GiftProductStock{ProductID: id})
		}
	}
	return result, nil
}

// -------------------------------------------------------------------
// RULE MANAGEMENT
// -------------------------------------------------------------------

func insertRule(ctx context.Context, tx pgx.Tx, rule *model.PromotionRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}

	query := `
		INSERT INTO promotion_rules (
			id, promotion_id, rule_type,
			condition_type, operator, numeric_value, product_ids, category_ids,
			benefit_type, benefit_value, max_discount_amount, applicable_product_ids,
			gift_product_ids, gift_quantities, gift_name, gift_name_quantity,
			min_cart_value, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, NOW(), NOW()
		)
		RETURNING created_at, updated_at
	`

	return tx.QueryRow(ctx, query,
		rule.ID,
		rule.PromotionID,
		rule.RuleType,
		rule.ConditionType,
		rule.Operator,
		rule.NumericValue,
		rule.ProductIDs,
		rule.CategoryIDs,
		rule.BenefitType,
		rule.BenefitValue,
		rule.MaxDiscountAmount,
		rule.ApplicableProductIDs,
		rule.GiftProductIDs,
		rule.GiftQuantities,
		rule.GiftName,
		rule.GiftNameQuantity,
		rule.MinCartValue,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
}

func (r *PostgresRepository) CreateRule(ctx context.Context, rule *model.PromotionRule) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rule transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertRule(ctx, tx, rule); err != nil {
		return fmt.Errorf("create promotion rule: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) DeleteRulesByPromotionID(ctx context.Context, promotionID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM promotion_rules WHERE promotion_id = $1`, promotionID)
	if err != nil {
		return fmt.Errorf("delete promotion rules: %w", err)
	}
	return nil
}

// ReplaceRules swaps the promotion's full rule set in one transaction.
// There is no partial merge: either every new rule lands or none do.
func (r *PostgresRepository) ReplaceRules(ctx context.Context, promotionID uuid.UUID, rules []*model.PromotionRule) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace rules transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM promotion_rules WHERE promotion_id = $1`, promotionID); err != nil {
		return fmt.Errorf("clear promotion rules: %w", err)
	}
	for _, rule := range rules {
		rule.PromotionID = promotionID
		if err := insertRule(ctx, tx, rule); err != nil {
			return fmt.Errorf("insert replacement rule: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace rules: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------
// ADMIN WRITES
// -------------------------------------------------------------------

func (r *PostgresRepository) Create(ctx context.Context, promo *model.Promotion) error {
	if promo.ID == uuid.Nil {
		promo.ID = uuid.New()
	}

	query := `
		INSERT INTO promotions (
			id, name, description, type, status, priority,
			starts_at, ends_at,
			usage_limit, usage_limit_per_customer, current_usage_count,
			exclusive_with, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, 0, NOW(), NOW()
		)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		promo.ID,
		promo.Name,
		promo.Description,
		promo.Type,
		promo.Status,
		promo.Priority,
		promo.StartsAt,
		promo.EndsAt,
		promo.UsageLimit,
		promo.UsageLimitPerCustomer,
		promo.ExclusiveWith,
	).Scan(&promo.CreatedAt, &promo.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create promotion: %w", err)
	}
	return nil
}

// Update persists admin edits with optimistic locking on version.
func (r *PostgresRepository) Update(ctx context.Context, promo *model.Promotion) error {
	query := `
		UPDATE promotions
		SET name = $2, description = $3, priority = $4,
		    starts_at = $5, ends_at = $6,
		    usage_limit = $7, usage_limit_per_customer = $8,
		    exclusive_with = $9,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $10 AND deleted_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query,
		promo.ID,
		promo.Name,
		promo.Description,
		promo.Priority,
		promo.StartsAt,
		promo.EndsAt,
		promo.UsageLimit,
		promo.UsageLimitPerCustomer,
		promo.ExclusiveWith,
		promo.Version,
	)
	if err != nil {
		return fmt.Errorf("update promotion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &model.AppError{
			Code:       model.ErrCodeLifecycleConflict,
			Message:    "promotion was modified concurrently, reload and retry",
			HTTPStatus: 409,
		}
	}
	promo.Version++
	return nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE promotions
		SET deleted_at = NOW(), version = version + 1, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("soft delete promotion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrPromotionNotFound
	}
	return nil
}

// -------------------------------------------------------------------
// ANALYTICS
// -------------------------------------------------------------------

func (r *PostgresRepository) RecordAnalytics(ctx context.Context, entry *model.AnalyticsEntry) error {
	query := `
		INSERT INTO promotion_analytics (promotion_id, event_type, from_status, to_status, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Exec(ctx, query,
		entry.PromotionID,
		entry.EventType,
		entry.FromStatus,
		entry.ToStatus,
		entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("record promotion analytics: %w", err)
	}
	return nil
}
