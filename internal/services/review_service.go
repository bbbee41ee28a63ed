package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/platform/textutil"
	"github.com/tindahan/api/internal/repositories"
)

const (
	reviewIDPrefix         = "rev_"
	maxReviewCommentLength = 2000
	anonymousAuthorName    = "Anonymous"
)

var (
	// ErrReviewInvalidInput indicates validation failures for review operations.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewNotFound indicates a review or order item could not be located.
	ErrReviewNotFound = errors.New("review: not found")
	// ErrReviewPermissionDenied indicates the caller does not own the review or order.
	ErrReviewPermissionDenied = errors.New("review: permission denied")
	// ErrReviewConflict signals a second review for the same order item.
	ErrReviewConflict = errors.New("review: conflict")
	// ErrReviewInvalidState is returned when the order has not reached the customer yet.
	ErrReviewInvalidState = errors.New("review: order not completed")
)

// ReviewServiceDeps bundles collaborators required to construct a ReviewService.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type reviewService struct {
	reviews repositories.ReviewRepository
	orders  repositories.OrderRepository
	clock   func() time.Time
	newID   func() string
}

var _ ReviewService = (*reviewService)(nil)

// NewReviewService constructs a ReviewService.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("review service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &reviewService{
		reviews: deps.Reviews,
		orders:  deps.Orders,
		clock:   func() time.Time { return clock().UTC() },
		newID:   idGen,
	}, nil
}

// Create records a review for one item of a delivered or collected order owned by the caller.
func (s *reviewService) Create(ctx context.Context, cmd CreateReviewCommand) (Review, error) {
	accountID := strings.TrimSpace(cmd.AccountID)
	itemID := strings.TrimSpace(cmd.OrderItemID)
	if accountID == "" || itemID == "" {
		return Review{}, fmt.Errorf("%w: account and order_item_id are required", ErrReviewInvalidInput)
	}
	if err := validateRating(cmd.Rating); err != nil {
		return Review{}, err
	}

	line, err := s.orders.FindLine(ctx, itemID)
	if err != nil {
		return Review{}, s.mapRepositoryError(err)
	}
	order, err := s.completedOrder(ctx, accountID, line.OrderID)
	if err != nil {
		return Review{}, err
	}

	existing, err := s.reviews.ListByOrder(ctx, order.ID)
	if err != nil {
		return Review{}, s.mapRepositoryError(err)
	}
	for _, review := range existing {
		if review.OrderItemID == itemID {
			return Review{}, fmt.Errorf("%w: order item already reviewed", ErrReviewConflict)
		}
	}

	now := s.clock()
	review := Review{
		ID:          reviewIDPrefix + s.newID(),
		AccountID:   accountID,
		AuthorName:  strings.TrimSpace(cmd.AuthorName),
		ProductID:   line.ProductID,
		OrderID:     order.ID,
		OrderItemID: itemID,
		Rating:      cmd.Rating,
		Comment:     textutil.PlainText(cmd.Comment, maxReviewCommentLength),
		IsAnonymous: cmd.IsAnonymous,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.reviews.Insert(ctx, review); err != nil {
		return Review{}, s.mapRepositoryError(err)
	}
	return review, nil
}

func (s *reviewService) Update(ctx context.Context, cmd UpdateReviewCommand) (Review, error) {
	if err := validateRating(cmd.Rating); err != nil {
		return Review{}, err
	}
	review, err := s.owned(ctx, cmd.ReviewID, cmd.AccountID)
	if err != nil {
		return Review{}, err
	}
	review.Rating = cmd.Rating
	review.Comment = textutil.PlainText(cmd.Comment, maxReviewCommentLength)
	if cmd.IsAnonymous != nil {
		review.IsAnonymous = *cmd.IsAnonymous
	}
	review.IsEdited = true
	review.UpdatedAt = s.clock()
	if err := s.reviews.Update(ctx, review); err != nil {
		return Review{}, s.mapRepositoryError(err)
	}
	return review, nil
}

func (s *reviewService) Delete(ctx context.Context, cmd DeleteReviewCommand) error {
	review, err := s.owned(ctx, cmd.ReviewID, cmd.AccountID)
	if err != nil {
		return err
	}
	return s.mapRepositoryError(s.reviews.Delete(ctx, review.ID))
}

// ListByProduct returns public reviews. Anonymous reviews carry no author.
func (s *reviewService) ListByProduct(ctx context.Context, productID string, pager Pagination) (domain.Page[Review], error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Page[Review]{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}
	page, err := s.reviews.ListByProduct(ctx, productID, pager)
	if err != nil {
		return domain.Page[Review]{}, s.mapRepositoryError(err)
	}
	for i := range page.Items {
		page.Items[i] = publicReview(page.Items[i])
	}
	return page, nil
}

func (s *reviewService) Summary(ctx context.Context, productID string) (ReviewSummary, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ReviewSummary{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}
	summary, err := s.reviews.Summary(ctx, productID)
	if err != nil {
		return ReviewSummary{}, s.mapRepositoryError(err)
	}
	summary.ProductID = productID
	if summary.Distribution == nil {
		summary.Distribution = map[int]int{}
	}
	for rating := 1; rating <= 5; rating++ {
		if _, ok := summary.Distribution[rating]; !ok {
			summary.Distribution[rating] = 0
		}
	}
	return summary, nil
}

func (s *reviewService) ListByAccount(ctx context.Context, accountID string, pager Pagination) (domain.Page[Review], error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.Page[Review]{}, fmt.Errorf("%w: account is required", ErrReviewInvalidInput)
	}
	page, err := s.reviews.ListByAccount(ctx, accountID, pager)
	if err != nil {
		return domain.Page[Review]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// Reviewable lists the items of a completed order with the caller's review of each.
func (s *reviewService) Reviewable(ctx context.Context, accountID string, orderID string) ([]ReviewableItem, error) {
	accountID = strings.TrimSpace(accountID)
	orderID = strings.TrimSpace(orderID)
	if accountID == "" || orderID == "" {
		return nil, fmt.Errorf("%w: account and order id are required", ErrReviewInvalidInput)
	}
	order, err := s.completedOrder(ctx, accountID, orderID)
	if err != nil {
		return nil, err
	}
	reviews, err := s.reviews.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	byItem := make(map[string]Review, len(reviews))
	for _, review := range reviews {
		byItem[review.OrderItemID] = review
	}

	items := make([]ReviewableItem, 0, len(order.Lines))
	for _, line := range order.Lines {
		item := ReviewableItem{
			OrderItemID: line.ID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
		}
		if review, ok := byItem[line.ID]; ok {
			item.Review = &review
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *reviewService) completedOrder(ctx context.Context, accountID, orderID string) (Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.AccountID != accountID {
		return Order{}, fmt.Errorf("%w: order belongs to another account", ErrReviewPermissionDenied)
	}
	switch order.ShippingStatus {
	case domain.ShippingDelivered, domain.ShippingCollected:
		return order, nil
	default:
		return Order{}, fmt.Errorf("%w: order is %s", ErrReviewInvalidState, order.ShippingStatus)
	}
}

func (s *reviewService) owned(ctx context.Context, reviewID, accountID string) (Review, error) {
	reviewID = strings.TrimSpace(reviewID)
	accountID = strings.TrimSpace(accountID)
	if reviewID == "" || accountID == "" {
		return Review{}, fmt.Errorf("%w: review id and account are required", ErrReviewInvalidInput)
	}
	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return Review{}, s.mapRepositoryError(err)
	}
	if review.AccountID != accountID {
		return Review{}, fmt.Errorf("%w: review belongs to another account", ErrReviewPermissionDenied)
	}
	return review, nil
}

func (s *reviewService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrReviewNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrReviewConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("review: repository unavailable: %w", err)
		}
	}
	return err
}

func validateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrReviewInvalidInput)
	}
	return nil
}

func publicReview(review Review) Review {
	if review.IsAnonymous {
		review.AuthorName = anonymousAuthorName
		review.AccountID = ""
	}
	return review
}
