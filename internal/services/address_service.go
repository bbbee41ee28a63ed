package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/tindahan/api/internal/repositories"
)

const addressIDPrefix = "adr_"

var (
	// ErrAddressInvalidInput indicates the address failed validation.
	ErrAddressInvalidInput = errors.New("address: invalid input")
	// ErrAddressNotFound indicates the address does not exist for the account.
	ErrAddressNotFound = errors.New("address: not found")
	// ErrAddressInUse indicates an order still references the address.
	ErrAddressInUse = errors.New("address: in use by an order")

	addressPhonePattern = regexp.MustCompile(`^[0-9+()\-\s]{6,20}$`)
)

// AddressServiceDeps bundles collaborators for the address book.
type AddressServiceDeps struct {
	Addresses   repositories.AddressRepository
	Orders      repositories.OrderRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
}

type addressService struct {
	addresses  repositories.AddressRepository
	orders     repositories.OrderRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
}

var _ AddressService = (*addressService)(nil)

// NewAddressService constructs the address book service.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Addresses == nil {
		return nil, errors.New("address service: address repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("address service: order repository is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &addressService{
		addresses:  deps.Addresses,
		orders:     deps.Orders,
		unitOfWork: unit,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
	}, nil
}

func (s *addressService) List(ctx context.Context, accountID string) ([]Address, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("%w: account is required", ErrAddressInvalidInput)
	}
	items, err := s.addresses.List(ctx, accountID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return items, nil
}

func (s *addressService) Get(ctx context.Context, accountID string, addressID string) (Address, error) {
	accountID = strings.TrimSpace(accountID)
	addressID = strings.TrimSpace(addressID)
	if accountID == "" || addressID == "" {
		return Address{}, fmt.Errorf("%w: account and address id are required", ErrAddressInvalidInput)
	}
	address, err := s.addresses.FindByID(ctx, addressID)
	if err != nil {
		return Address{}, s.mapRepositoryError(err)
	}
	// Another account's address is reported as missing.
	if address.AccountID != accountID {
		return Address{}, ErrAddressNotFound
	}
	return address, nil
}

// Create adds an address. The first address of an account becomes its default.
func (s *addressService) Create(ctx context.Context, cmd UpsertAddressCommand) (Address, error) {
	address, err := sanitizeAddress(cmd)
	if err != nil {
		return Address{}, err
	}
	now := s.clock()
	address.ID = addressIDPrefix + s.newID()
	address.CreatedAt = now
	address.UpdatedAt = now

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.addresses.List(txCtx, address.AccountID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if len(existing) == 0 {
			address.IsDefault = true
		}
		if err := s.addresses.Insert(txCtx, address); err != nil {
			return s.mapRepositoryError(err)
		}
		if address.IsDefault {
			return s.mapRepositoryError(s.addresses.ClearDefault(txCtx, address.AccountID, address.ID))
		}
		return nil
	})
	if err != nil {
		return Address{}, err
	}
	return address, nil
}

func (s *addressService) Update(ctx context.Context, cmd UpsertAddressCommand) (Address, error) {
	next, err := sanitizeAddress(cmd)
	if err != nil {
		return Address{}, err
	}
	existing, err := s.Get(ctx, next.AccountID, cmd.AddressID)
	if err != nil {
		return Address{}, err
	}
	next.ID = existing.ID
	next.CreatedAt = existing.CreatedAt
	next.UpdatedAt = s.clock()
	// The default can only move to another address, not be switched off.
	if existing.IsDefault {
		next.IsDefault = true
	}

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.addresses.Update(txCtx, next); err != nil {
			return s.mapRepositoryError(err)
		}
		if next.IsDefault && !existing.IsDefault {
			return s.mapRepositoryError(s.addresses.ClearDefault(txCtx, next.AccountID, next.ID))
		}
		return nil
	})
	if err != nil {
		return Address{}, err
	}
	return next, nil
}

// Delete removes an address unless an order references it. Deleting the default promotes the
// oldest remaining address.
func (s *addressService) Delete(ctx context.Context, accountID string, addressID string) error {
	target, err := s.Get(ctx, accountID, addressID)
	if err != nil {
		return err
	}
	inUse, err := s.orders.AddressInUse(ctx, target.ID)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if inUse {
		return ErrAddressInUse
	}

	return s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.addresses.Delete(txCtx, target.ID); err != nil {
			return s.mapRepositoryError(err)
		}
		if !target.IsDefault {
			return nil
		}
		remaining, err := s.addresses.List(txCtx, target.AccountID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if len(remaining) == 0 {
			return nil
		}
		replacement := remaining[0]
		for _, candidate := range remaining[1:] {
			if candidate.CreatedAt.Before(replacement.CreatedAt) {
				replacement = candidate
			}
		}
		replacement.IsDefault = true
		replacement.UpdatedAt = s.clock()
		return s.mapRepositoryError(s.addresses.Update(txCtx, replacement))
	})
}

func (s *addressService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrAddressNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrAddressInUse, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("address: repository unavailable: %w", err)
		}
	}
	return err
}

func sanitizeAddress(cmd UpsertAddressCommand) (Address, error) {
	address := Address{
		AccountID:      strings.TrimSpace(cmd.AccountID),
		Label:          strings.TrimSpace(cmd.Label),
		RecipientName:  strings.TrimSpace(cmd.RecipientName),
		Phone:          strings.TrimSpace(cmd.Phone),
		Street:         strings.TrimSpace(cmd.Street),
		AdditionalInfo: strings.TrimSpace(cmd.AdditionalInfo),
		IsDefault:      cmd.IsDefault,
	}
	if address.AccountID == "" {
		return Address{}, fmt.Errorf("%w: account is required", ErrAddressInvalidInput)
	}
	if address.RecipientName == "" || utf8.RuneCountInString(address.RecipientName) > 200 {
		return Address{}, fmt.Errorf("%w: recipient_name must be 1-200 characters", ErrAddressInvalidInput)
	}
	if address.Street == "" {
		return Address{}, fmt.Errorf("%w: street is required", ErrAddressInvalidInput)
	}
	if address.Phone != "" && !addressPhonePattern.MatchString(address.Phone) {
		return Address{}, fmt.Errorf("%w: phone is invalid", ErrAddressInvalidInput)
	}
	if (cmd.Latitude == nil) != (cmd.Longitude == nil) {
		return Address{}, fmt.Errorf("%w: latitude and longitude go together", ErrAddressInvalidInput)
	}
	if cmd.Latitude != nil {
		lat, lng := *cmd.Latitude, *cmd.Longitude
		if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			return Address{}, fmt.Errorf("%w: coordinates out of range", ErrAddressInvalidInput)
		}
		address.Latitude = &lat
		address.Longitude = &lng
	}
	return address, nil
}
