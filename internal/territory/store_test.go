package territory

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend-territory/internal/geodesy"
	"backend-territory/internal/geom"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

var errStore = errors.New("store down")

const squareGeoJSON = `{"type":"MultiPolygon","coordinates":[[[[106.8,-6.2],[106.801,-6.2],[106.801,-6.199],[106.8,-6.199],[106.8,-6.2]]]]}`
const squareCoordinates = `[[{"lat":-6.2,"lng":106.8},{"lat":-6.2,"lng":106.801},{"lat":-6.199,"lng":106.801},{"lat":-6.199,"lng":106.8},{"lat":-6.2,"lng":106.8}]]`

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	return mock
}

func TestPostgresInsertIncrementsCount(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	g, err := geom.FromRings([][]geodesy.LatLng{rect(0, 0, 50, 50)})
	if err != nil {
		t.Fatalf("geometry: %v", err)
	}
	now := time.Now()
	mock.ExpectQuery(`(?s)INSERT INTO territories.*UPDATE users SET territory_count = territory_count \+ 1`).
		WithArgs("terr-1", "user-1", pgxmock.AnyArg(), pgxmock.AnyArg(), 2500.0).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	store := NewPostgresStore(mock)
	got, err := store.Insert(context.Background(), Territory{ID: "terr-1", UserID: "user-1", Geometry: g, Coordinates: g.OuterRings(), AreaSqMeters: 2500})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at from store")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresGetDecodesGeometry(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, user_id, ST_AsGeoJSON\(geometry\), coordinates::text`).
		WithArgs("terr-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "geometry", "coordinates", "area", "created_at", "updated_at"}).
			AddRow("terr-1", "user-1", squareGeoJSON, squareCoordinates, 12300.0, now, now))
	mock.ExpectQuery(`SELECT id, user_id, ST_AsGeoJSON\(geometry\)`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	store := NewPostgresStore(mock)
	got, err := store.Get(context.Background(), "terr-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Geometry.Kind() != geom.KindRing || len(got.Coordinates) != 1 || len(got.Coordinates[0]) != 5 {
		t.Fatalf("unexpected decoded territory: %+v", got)
	}
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresOverwriteAndDelete(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	g, _ := geom.FromRings([][]geodesy.LatLng{rect(0, 0, 20, 20)})
	now := time.Now()
	mock.ExpectQuery(`UPDATE territories`).
		WithArgs("terr-1", pgxmock.AnyArg(), pgxmock.AnyArg(), 400.0).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectQuery(`UPDATE territories`).
		WithArgs("gone", pgxmock.AnyArg(), pgxmock.AnyArg(), 400.0).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`(?s)DELETE FROM territories.*GREATEST\(territory_count - 1, 0\)`).
		WithArgs("terr-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("user-1"))
	mock.ExpectQuery(`DELETE FROM territories`).
		WithArgs("gone").
		WillReturnError(pgx.ErrNoRows)

	store := NewPostgresStore(mock)
	ctx := context.Background()
	if _, err := store.Overwrite(ctx, Territory{ID: "terr-1", Geometry: g, Coordinates: g.OuterRings(), AreaSqMeters: 400}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := store.Overwrite(ctx, Territory{ID: "gone", Geometry: g, Coordinates: g.OuterRings(), AreaSqMeters: 400}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "terr-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresIntersectingScopesToFriends(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	g, _ := geom.FromRings([][]geodesy.LatLng{rect(0, 0, 200, 200)})
	now := time.Now()
	mock.ExpectQuery(`WHERE user_id = ANY\(\$1\) AND id <> \$2\s+AND ST_Intersects`).
		WithArgs([]string{"user-2", "user-3"}, "terr-new", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "geometry", "coordinates", "area", "created_at", "updated_at"}).
			AddRow("terr-2", "user-2", squareGeoJSON, squareCoordinates, 12300.0, now, now))
	mock.ExpectQuery(`ST_Intersects`).
		WithArgs([]string{"user-2"}, "terr-new", pgxmock.AnyArg()).
		WillReturnError(errStore)

	store := NewPostgresStore(mock)
	ctx := context.Background()
	list, err := store.Intersecting(ctx, g, []string{"user-2", "user-3"}, "terr-new")
	if err != nil {
		t.Fatalf("intersecting: %v", err)
	}
	if len(list) != 1 || list[0].UserID != "user-2" {
		t.Fatalf("unexpected neighbors: %+v", list)
	}
	if _, err := store.Intersecting(ctx, g, []string{"user-2"}, "terr-new"); !errors.Is(err, errStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	if list, err := store.Intersecting(ctx, g, nil, "terr-new"); err != nil || list != nil {
		t.Fatalf("no friends should mean no query")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresListByOwner(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery(`WHERE user_id=\$1 ORDER BY created_at DESC`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "geometry", "coordinates", "area", "created_at", "updated_at"}).
			AddRow("terr-1", "user-1", squareGeoJSON, squareCoordinates, 12300.0, now, now).
			AddRow("terr-2", "user-1", `{"type":"Point","coordinates":[0,0]}`, squareCoordinates, 1.0, now, now))

	_, err := NewPostgresStore(mock).ListByOwner(context.Background(), "user-1")
	var gerr *geom.GeometryError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected geometry decode error for unsupported row, got %v", err)
	}
}
