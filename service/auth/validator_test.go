package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"dyadchat/module/chat/model"
)

func TestSessionValidator(t *testing.T) {
	ctx := context.Background()
	query := regexp.QuoteMeta(`SELECT user_id FROM user_sessions WHERE session_token = $1 AND expires_at >= $2 LIMIT 1`)

	tests := []struct {
		name      string
		token     string
		setupMock func(sqlmock.Sqlmock)
		wantID    model.UserID
		wantErr   error
		anyErr    bool
	}{
		{
			name:  "valid session",
			token: " tok ",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(query).WithArgs("tok", sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(7)))
			},
			wantID: 7,
		},
		{
			name:  "expired or unknown",
			token: "gone",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(query).WithArgs("gone", sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
			},
			wantErr: ErrRejected,
		},
		{
			name:      "empty token never hits the db",
			token:     "  ",
			setupMock: func(sqlmock.Sqlmock) {},
			wantErr:   ErrRejected,
		},
		{
			name:  "backend failure is not a rejection",
			token: "tok",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(query).WillReturnError(errors.New("connection refused"))
			},
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.setupMock(mock)

			v := NewSessionValidator(db)
			id, err := v.Validate(ctx, tt.token)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				require.Error(t, err)
				require.NotErrorIs(t, err, ErrRejected)
			default:
				require.NoError(t, err)
				require.Equal(t, tt.wantID, id)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestJWTValidator(t *testing.T) {
	ctx := context.Background()
	v := NewJWTValidator([]byte("secret"), "HS256")

	tok, err := v.Issue(42, time.Minute)
	require.NoError(t, err)
	id, err := v.Validate(ctx, tok)
	require.NoError(t, err)
	require.Equal(t, model.UserID(42), id)

	_, err = NewJWTValidator([]byte("other"), "").Validate(ctx, tok)
	require.ErrorIs(t, err, ErrRejected)

	_, err = v.Validate(ctx, "garbage")
	require.ErrorIs(t, err, ErrRejected)

	bad := NewJWTValidator([]byte("secret"), "RS256")
	_, err = bad.Validate(ctx, tok)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrRejected)
}

func TestJWTValidatorNonNumericSubject(t *testing.T) {
	v := NewJWTValidator([]byte("secret"), "")
	tok, err := v.Issue(0, time.Minute)
	require.NoError(t, err)
	_, err = v.Validate(context.Background(), tok)
	require.ErrorIs(t, err, ErrRejected)
}

func TestStaticValidator(t *testing.T) {
	ctx := context.Background()
	v := NewStaticValidator(map[string]model.UserID{"a": 1})
	v.Add("b", 2)

	id, err := v.Validate(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, model.UserID(2), id)

	_, err = v.Validate(ctx, "c")
	require.ErrorIs(t, err, ErrRejected)

	v.FailWith(errors.New("down"))
	_, err = v.Validate(ctx, "a")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrRejected)
	v.FailWith(nil)
	_, err = v.Validate(ctx, "a")
	require.NoError(t, err)
}
