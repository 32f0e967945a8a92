package aggregate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/groupcart-backend/pkg/db/models"
)

const defaultSuggestionLimit = 3

// Reader is read-only access to the cart aggregate tables owned by the cart service.
// Absent rows are reported as nil with a nil error.
type Reader interface {
	GetCartByID(ctx context.Context, cartID uuid.UUID) (*models.Cart, error)
	GetCartWithItems(ctx context.Context, cartID uuid.UUID) (*models.Cart, error)
	GetCouponByID(ctx context.Context, couponID uuid.UUID) (*models.Coupon, error)
	ListMemberIDs(ctx context.Context, cartID uuid.UUID) ([]uuid.UUID, error)
	ListSuggestedCoupons(ctx context.Context, restaurantID uuid.UUID, subtotal decimal.Decimal, limit int) ([]models.Coupon, error)
}

type repositoryImpl struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository returns an aggregate reader bound to the provided database.
func NewRepository(db *gorm.DB) Reader {
	return &repositoryImpl{db: db, now: time.Now}
}

func (r *repositoryImpl) GetCartByID(ctx context.Context, cartID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Restaurant").
		Preload("Members").
		Where("id = ?", cartID).
		First(&cart).Error
	return found(&cart, err)
}

func (r *repositoryImpl) GetCartWithItems(ctx context.Context, cartID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Restaurant").
		Preload("Members").
		Preload("Items").
		Preload("Items.Customizations").
		Where("id = ?", cartID).
		First(&cart).Error
	return found(&cart, err)
}

func (r *repositoryImpl) GetCouponByID(ctx context.Context, couponID uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).Where("id = ?", couponID).First(&coupon).Error
	return found(&coupon, err)
}

func (r *repositoryImpl) ListMemberIDs(ctx context.Context, cartID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.CartMember{}).
		Where("cart_id = ?", cartID).
		Order("joined_at ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// ListSuggestedCoupons returns active coupons valid for the restaurant (or platform wide)
// whose minimum subtotal the cart already meets, cheapest threshold first.
func (r *repositoryImpl) ListSuggestedCoupons(ctx context.Context, restaurantID uuid.UUID, subtotal decimal.Decimal, limit int) ([]models.Coupon, error) {
	if limit <= 0 {
		limit = defaultSuggestionLimit
	}
	var coupons []models.Coupon
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Where("restaurant_id = ? OR restaurant_id IS NULL", restaurantID).
		Where("expires_at IS NULL OR expires_at > ?", r.now().UTC()).
		Where("min_subtotal <= ?", subtotal).
		Order("min_subtotal ASC").
		Order("code ASC").
		Limit(limit).
		Find(&coupons).Error
	return coupons, err
}

func found[T any](row *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}
