package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/nftbay/marketplace/internal/domain/market"
	"github.com/nftbay/marketplace/internal/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "sqlmock")), mock
}

var testAsset = market.AssetID{Contract: "0xcafe", TokenID: 3}

func TestGetListing(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"contract", "token_id", "seller", "price"}).
		AddRow("0xcafe", int64(3), "0xseller", int64(250))
	mock.ExpectQuery("SELECT contract, token_id, seller, price").
		WithArgs("0xcafe", int64(3)).
		WillReturnRows(rows)

	listing, err := store.GetListing(context.Background(), testAsset)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if listing.Seller != "0xseller" || listing.Price != 250 {
		t.Fatalf("unexpected listing: %+v", listing)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetListingNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT contract, token_id, seller, price").
		WithArgs("0xcafe", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"contract", "token_id", "seller", "price"}))

	_, err := store.GetListing(context.Background(), testAsset)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutListingUpserts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO marketplace_listings").
		WithArgs("0xcafe", int64(3), "0xseller", int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.PutListing(context.Background(), testAsset, market.Listing{Seller: "0xseller", Price: 99})
	if err != nil {
		t.Fatalf("put listing: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteListingNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM marketplace_listings").
		WithArgs("0xcafe", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteListing(context.Background(), testAsset)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProceedsAbsentIsZero(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT balance FROM marketplace_proceeds").
		WithArgs("0xseller").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))

	balance, err := store.Proceeds(context.Background(), "0xseller")
	if err != nil {
		t.Fatalf("proceeds: %v", err)
	}
	if balance != 0 {
		t.Fatalf("absent record should read as zero: %d", balance)
	}
}

func TestAddProceedsReturnsNewBalance(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO marketplace_proceeds").
		WithArgs("0xseller", int64(40)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(140)))

	balance, err := store.AddProceeds(context.Background(), "0xseller", 40)
	if err != nil {
		t.Fatalf("add proceeds: %v", err)
	}
	if balance != 140 {
		t.Fatalf("unexpected balance: %d", balance)
	}
}

func TestSubProceedsOverdraw(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE marketplace_proceeds").
		WithArgs("0xseller", int64(500)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))

	_, err := store.SubProceeds(context.Background(), "0xseller", 500)
	if err == nil {
		t.Fatal("expected overdraw error")
	}
}

func TestTakeProceeds(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT balance FROM marketplace_proceeds").
		WithArgs("0xseller").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(75)))
	mock.ExpectExec("UPDATE marketplace_proceeds SET balance = 0").
		WithArgs("0xseller").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	balance, err := store.TakeProceeds(context.Background(), "0xseller")
	if err != nil {
		t.Fatalf("take proceeds: %v", err)
	}
	if balance != 75 {
		t.Fatalf("unexpected prior balance: %d", balance)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTakeProceedsAbsent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT balance FROM marketplace_proceeds").
		WithArgs("0xseller").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))
	mock.ExpectCommit()

	balance, err := store.TakeProceeds(context.Background(), "0xseller")
	if err != nil {
		t.Fatalf("take proceeds: %v", err)
	}
	if balance != 0 {
		t.Fatalf("absent record should take zero: %d", balance)
	}
}
