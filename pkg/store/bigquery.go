package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// BigQueryConfig configures the BigQuery sink. Statements map a kind to a
// table ID within DatasetID.
type BigQueryConfig struct {
	ProjectID       string
	DatasetID       string
	CredentialsFile string // Optional: Path to a service account JSON file.
	Statements      Statements
}

// NewProductionBigQueryClient creates a BigQuery client suitable for production environments.
func NewProductionBigQueryClient(ctx context.Context, projectID string, credentialsFile string, logger zerolog.Logger) (*bigquery.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
		logger.Info().Str("credentials_file", credentialsFile).Msg("Using specified credentials file for BigQuery client.")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC) for BigQuery client.")
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		logger.Error().Err(err).Str("project_id", projectID).Msg("Failed to create BigQuery client.")
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	logger.Info().Str("project_id", projectID).Msg("BigQuery client created successfully.")
	return client, nil
}

// BigQueryExecutor streams each record as one row into its kind's table.
// Tables must already exist; the row's columns are the record's parameter
// names.
type BigQueryExecutor struct {
	client    *bigquery.Client
	ownClient bool
	dataset   *bigquery.Dataset
	tables    Statements
	inserters map[measurement.Kind]*bigquery.Inserter
	logger    zerolog.Logger
}

// NewBigQueryExecutor creates a client from cfg and prepares one inserter
// per configured kind.
func NewBigQueryExecutor(ctx context.Context, cfg BigQueryConfig, logger zerolog.Logger) (*BigQueryExecutor, error) {
	if cfg.ProjectID == "" || cfg.DatasetID == "" {
		return nil, errors.New("bigquery project and dataset are required")
	}
	client, err := NewProductionBigQueryClient(ctx, cfg.ProjectID, cfg.CredentialsFile, logger)
	if err != nil {
		return nil, err
	}
	e, err := NewBigQueryExecutorWithClient(client, cfg.DatasetID, cfg.Statements, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	e.ownClient = true
	return e, nil
}

// NewBigQueryExecutorWithClient uses an existing client, whose lifecycle
// stays with the caller.
func NewBigQueryExecutorWithClient(client *bigquery.Client, datasetID string, tables Statements, logger zerolog.Logger) (*BigQueryExecutor, error) {
	if client == nil {
		return nil, errors.New("bigquery client cannot be nil")
	}
	dataset := client.Dataset(datasetID)
	inserters := make(map[measurement.Kind]*bigquery.Inserter, len(tables))
	for k, table := range tables {
		inserters[k] = dataset.Table(table).Inserter()
	}
	return &BigQueryExecutor{
		client:    client,
		dataset:   dataset,
		tables:    tables,
		inserters: inserters,
		logger:    logger.With().Str("component", "BigQueryExecutor").Str("dataset_id", datasetID).Logger(),
	}, nil
}

// Insert streams rec into its table. Generic JSON records name their table
// in the route statement.
func (e *BigQueryExecutor) Insert(ctx context.Context, rec measurement.Record) error {
	table, err := e.tables.statementFor(rec)
	if err != nil {
		return err
	}
	inserter, ok := e.inserters[rec.Kind]
	if !ok || rec.Kind == measurement.KindGenericJSON {
		inserter = e.dataset.Table(table).Inserter()
	}

	row := paramRow{params: rec.Measurement.Params(), insertID: insertID(rec)}
	if err := inserter.Put(ctx, row); err != nil {
		var multiErr bigquery.PutMultiError
		if errors.As(err, &multiErr) {
			for _, rowErr := range multiErr {
				e.logger.Error().Str("table", table).Int("row_index", rowErr.RowIndex).Msgf("BigQuery row insertion error: %v", rowErr.Errors)
			}
		}
		return fmt.Errorf("failed to insert %s row into %s: %w", rec.Kind, table, err)
	}
	return nil
}

// Close releases the client if the executor created it.
func (e *BigQueryExecutor) Close() error {
	if e.ownClient {
		return e.client.Close()
	}
	return nil
}

// paramRow adapts measurement parameters to bigquery.ValueSaver.
type paramRow struct {
	params   []measurement.Param
	insertID string
}

func (r paramRow) Save() (map[string]bigquery.Value, string, error) {
	row := make(map[string]bigquery.Value, len(r.params))
	for _, p := range r.params {
		row[p.Name] = p.Value
	}
	return row, r.insertID, nil
}

// insertID lets BigQuery deduplicate retried streaming inserts.
func insertID(rec measurement.Record) string {
	return fmt.Sprintf("%s/%s/%d/%d", rec.Kind, rec.Measurement.Subject(),
		rec.Measurement.ObservedAt().UnixNano(), rec.ReceivedAt.UnixNano())
}
