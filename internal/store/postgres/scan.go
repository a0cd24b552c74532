package postgres

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"StreamAccounts/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func textOrEmpty(t pgtype.Text) string {
	if t.Valid {
		return t.String
	}
	return ""
}

func timestamptzPtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	tt := t.Time
	return &tt
}

func datePtr(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	tt := d.Time
	return &tt
}

func uuidOrEmpty(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuidBytesToString(u.Bytes)
}

func uuidBytesToString(b [16]byte) string {
	var buf [36]byte
	hex.Encode(buf[0:8], b[0:4])
	buf[8] = '-'
	hex.Encode(buf[9:13], b[4:6])
	buf[13] = '-'
	hex.Encode(buf[14:18], b[6:8])
	buf[18] = '-'
	hex.Encode(buf[19:23], b[8:10])
	buf[23] = '-'
	hex.Encode(buf[24:36], b[10:16])
	return string(buf[:])
}

func textArrayOrEmpty(a pgtype.FlatArray[string]) []string {
	if a == nil {
		return []string{}
	}
	return []string(a)
}

func int4Ptr(v pgtype.Int4) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int32)
	return &i
}

func intPtrArg(v *int) any {
	if v == nil {
		return nil
	}
	return int32(*v)
}

// notFound maps missing rows, and ids that are not valid uuids, to
// domain.ErrNotFound.
func notFound(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgerr *pgconn.PgError
	return errors.As(err, &pgerr) && pgerr.Code == "22P02"
}

func uniqueViolation(err error) (string, bool) {
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return pgerr.ConstraintName, true
	}
	return "", false
}

func mapNotFound(err error, op string) error {
	if notFound(err) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
