package ingest

import (
	"context"
	"testing"

	"hiring-data-sync/internal/errors"
	"hiring-data-sync/internal/schema"
	"hiring-data-sync/internal/validator"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const requestJSON = `{
	"hired_employees": [{"id": 1, "name": "Ana", "datetime": "2021-07-27T16:02:08Z", "department_id": 1, "job_id": 1}],
	"jobs": [{"id": 1, "name": "Recruiter"}],
	"departments": [{"id": 1, "name": "Staff"}]
}`

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte(requestJSON))
	require.NoError(t, err)
	assert.Equal(t, 3, req.Total())

	_, err = DecodeRequest([]byte(`{"jobs": [`))
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestIngestRequest_DependencyOrderInOneTx(t *testing.T) {
	ing, mock := newMock(t)
	req, err := DecodeRequest([]byte(requestJSON))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `departments`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `jobs`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `hired_employees`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := ing.IngestRequest(context.Background(), schema.DefaultCatalog(), validator.NewValidator(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Inserted)
	require.Len(t, res.Tables, 3)
	assert.Equal(t, schema.TableHiredEmployees, res.Tables[2].Table)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestRequest_FailureRollsBackAllTables(t *testing.T) {
	ing, mock := newMock(t)
	req, err := DecodeRequest([]byte(requestJSON))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `departments`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `jobs`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `hired_employees`").
		WillReturnError(&mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"})
	mock.ExpectRollback()

	_, err = ing.IngestRequest(context.Background(), schema.DefaultCatalog(), validator.NewValidator(), req)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConstraint))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestRequest_ValidationFailsBeforeStore(t *testing.T) {
	ing, mock := newMock(t)
	req := Request{schema.TableJobs: {
		{"id": schema.Int(1), "name": schema.String("a")},
		{"id": schema.Int(1), "name": schema.String("b")},
	}}

	_, err := ing.IngestRequest(context.Background(), schema.DefaultCatalog(), validator.NewValidator(), req)
	vErr, ok := errors.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, errors.DuplicateKey, vErr.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestRequest_Rejects(t *testing.T) {
	ing, _ := newMock(t)
	cat := schema.DefaultCatalog()
	v := validator.NewValidator()

	_, err := ing.IngestRequest(context.Background(), cat, v, Request{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeBatchSize))

	_, err = ing.IngestRequest(context.Background(), cat, v, Request{"payroll": {{"id": schema.Int(1)}}})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	big := make([]schema.Record, 600)
	for i := range big {
		big[i] = schema.Record{"id": schema.Int(int64(i)), "name": schema.String("x")}
	}
	_, err = ing.IngestRequest(context.Background(), cat, v, Request{schema.TableJobs: big, schema.TableDepartments: big})
	assert.True(t, errors.IsType(err, errors.ErrorTypeBatchSize), "total across tables is bounded")
}
