package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestAddressService(t *testing.T, addresses *fakeAddresses, orders *fakeOrders) AddressService {
	t.Helper()
	svc, err := NewAddressService(AddressServiceDeps{
		Addresses:   addresses,
		Orders:      orders,
		Clock:       fixedClock,
		IDGenerator: sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("NewAddressService: %v", err)
	}
	return svc
}

func addressCommand(label string) UpsertAddressCommand {
	return UpsertAddressCommand{
		AccountID:     "acct-1",
		Label:         label,
		RecipientName: "Juan dela Cruz",
		Phone:         "+63 917 555 0100",
		Street:        "12 Kalayaan Ave",
		Latitude:      ptrFloat(14.65),
		Longitude:     ptrFloat(121.03),
	}
}

func TestAddressServiceFirstAddressIsDefault(t *testing.T) {
	addresses := newFakeAddresses()
	svc := newTestAddressService(t, addresses, newFakeOrders())
	ctx := context.Background()

	home, err := svc.Create(ctx, addressCommand("Home"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !home.IsDefault {
		t.Fatalf("expected first address to be default")
	}
	office, err := svc.Create(ctx, addressCommand("Office"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if office.IsDefault {
		t.Fatalf("second address must not become default implicitly")
	}

	cmd := addressCommand("Office")
	cmd.AddressID = office.ID
	cmd.IsDefault = true
	if _, err := svc.Update(ctx, cmd); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if addresses.items[home.ID].IsDefault || !addresses.items[office.ID].IsDefault {
		t.Fatalf("expected default to move to office")
	}
}

func TestAddressServiceValidation(t *testing.T) {
	svc := newTestAddressService(t, newFakeAddresses(), newFakeOrders())
	invalid := []func(*UpsertAddressCommand){
		func(c *UpsertAddressCommand) { c.RecipientName = "" },
		func(c *UpsertAddressCommand) { c.Street = " " },
		func(c *UpsertAddressCommand) { c.Phone = "call me" },
		func(c *UpsertAddressCommand) { c.Longitude = nil },
		func(c *UpsertAddressCommand) { c.Latitude = ptrFloat(95) },
	}
	for i, mutate := range invalid {
		cmd := addressCommand("Home")
		mutate(&cmd)
		if _, err := svc.Create(context.Background(), cmd); !errors.Is(err, ErrAddressInvalidInput) {
			t.Errorf("case %d: expected invalid input, got %v", i, err)
		}
	}
}

func TestAddressServiceGetHidesOtherAccounts(t *testing.T) {
	addresses := newFakeAddresses(Address{ID: "adr_x", AccountID: "acct-2", Street: "x"})
	svc := newTestAddressService(t, addresses, newFakeOrders())
	if _, err := svc.Get(context.Background(), "acct-1", "adr_x"); !errors.Is(err, ErrAddressNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAddressServiceDelete(t *testing.T) {
	addresses := newFakeAddresses(
		Address{ID: "adr_a", AccountID: "acct-1", Street: "a", IsDefault: true, CreatedAt: fixedNow},
		Address{ID: "adr_b", AccountID: "acct-1", Street: "b", CreatedAt: fixedNow.Add(time.Hour)},
		Address{ID: "adr_c", AccountID: "acct-1", Street: "c", CreatedAt: fixedNow.Add(-time.Hour)},
	)
	orders := newFakeOrders(Order{ID: "ord_1", AccountID: "acct-1", AddressID: "adr_b"})
	svc := newTestAddressService(t, addresses, orders)
	ctx := context.Background()

	if err := svc.Delete(ctx, "acct-1", "adr_b"); !errors.Is(err, ErrAddressInUse) {
		t.Fatalf("expected in-use conflict, got %v", err)
	}
	if err := svc.Delete(ctx, "acct-1", "adr_a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := addresses.items["adr_a"]; ok {
		t.Fatalf("expected address removed")
	}
	if !addresses.items["adr_c"].IsDefault {
		t.Fatalf("expected oldest remaining address to become default")
	}
}
