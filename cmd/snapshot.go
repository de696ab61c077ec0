package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gym-snapshot/internal/access"
	"gym-snapshot/internal/catalog"
	"gym-snapshot/internal/database"
	"gym-snapshot/internal/display"
	apperrors "gym-snapshot/internal/errors"
	"gym-snapshot/internal/logging"
	"gym-snapshot/internal/snapshot"

	"github.com/spf13/cobra"
)

var (
	// Caller flags
	callerID   string
	callerRole string
	bootstrap  bool

	// Creation flags
	createScope  string
	createTenant string
	createTables []string

	// Download flags
	downloadOutput string

	// Restore flags
	restoreWipeScope   string
	restoreMaxWait     time.Duration
	restoreMaxDuration time.Duration
	assumeYes          bool

	// Schema flags
	schemaDialect string
)

// snapshotCmd represents the snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage gym database snapshots",
	Long: `Create, list, download, delete and restore snapshots of the gym database.

Every operation is checked against the access policy for the calling role
before any work happens. Denied and failed calls are recorded in the audit log
when auditing is enabled.`,
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotList,
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a full or selective snapshot",
	Long: `Create a snapshot of the destination store and save it to the snapshot store.

A full snapshot (completo) carries every entity set with every row. A selective
snapshot (seletivo) carries the listed tables, or the configured defaults, and
with --tenant only that tenant's rows of tenant-scoped sets.

Examples:
  gym-snapshot snapshot create --scope completo
  gym-snapshot snapshot create --scope seletivo --tenant T1 --tables alunos,medidas`,
	Args: cobra.NoArgs,
	RunE: runSnapshotCreate,
}

var snapshotDownloadCmd = &cobra.Command{
	Use:   "download <name>",
	Short: "Write a stored snapshot to a file or stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotDownload,
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a stored snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotDelete,
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Replace the store contents with a stored snapshot",
	Long: `Restore a stored snapshot into the destination store.

The store is emptied in reverse dependency order and the snapshot's entity sets
are recreated in dependency order, all inside one transaction. With the default
wipe scope (catalog) every entity set is emptied, including sets a selective
snapshot does not carry.

Examples:
  gym-snapshot snapshot restore backup-20250301-100000.000-completo-0a1b2c3d.json --yes
  gym-snapshot snapshot restore <name> --wipe-scope included --max-duration 2m --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runSnapshotRestore,
}

var snapshotRestoreFileCmd = &cobra.Command{
	Use:   "restore-file <path>",
	Short: "Restore an uploaded snapshot file without storing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotRestoreFile,
}

var snapshotCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that the database and the snapshot store are reachable",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotCheck,
}

var snapshotOrderCmd = &cobra.Command{
	Use:   "order",
	Short: "Print the entity sets in dependency order",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotOrder,
}

var snapshotSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the DDL of the cataloged tables",
	Args:  cobra.NoArgs,
	RunE:  runSnapshotSchema,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotDownloadCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)
	snapshotCmd.AddCommand(snapshotRestoreFileCmd)
	snapshotCmd.AddCommand(snapshotCheckCmd)
	snapshotCmd.AddCommand(snapshotOrderCmd)
	snapshotCmd.AddCommand(snapshotSchemaCmd)

	flags := snapshotCmd.PersistentFlags()
	flags.StringVar(&callerID, "caller", defaultCallerID(), "caller identity recorded in the audit log")
	flags.StringVar(&callerRole, "role", "", "caller role checked against the access policy (default: access.default_role)")
	flags.BoolVar(&bootstrap, "bootstrap", false, "create missing tables before running the command")

	snapshotCreateCmd.Flags().StringVar(&createScope, "scope", "completo", "snapshot scope (completo, seletivo)")
	snapshotCreateCmd.Flags().StringVar(&createTenant, "tenant", "", "tenant id for a selective snapshot")
	snapshotCreateCmd.Flags().StringSliceVar(&createTables, "tables", nil, "entity sets for a selective snapshot")

	snapshotDownloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "destination file (default stdout)")

	for _, c := range []*cobra.Command{snapshotRestoreCmd, snapshotRestoreFileCmd} {
		c.Flags().StringVar(&restoreWipeScope, "wipe-scope", "", "entity sets to empty first (catalog, included)")
		c.Flags().DurationVar(&restoreMaxWait, "max-wait", 0, "longest wait for another restore to finish")
		c.Flags().DurationVar(&restoreMaxDuration, "max-duration", 0, "time budget for the restore transaction")
		c.Flags().BoolVarP(&assumeYes, "yes", "y", false, "confirm that the store contents will be replaced")
	}
	snapshotDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "confirm the deletion")

	snapshotSchemaCmd.Flags().StringVar(&schemaDialect, "dialect", "", "SQL dialect (mysql, sqlite3; default: database.driver)")
}

// engine holds the wired snapshot service for one command run
type engine struct {
	service  *snapshot.Service
	registry *snapshot.Registry
	store    *snapshot.Store
	provider snapshot.StorageProvider
	driver   string
	metrics  *snapshot.Metrics
	printer  *display.Printer
	logger   *logging.Logger
	db       *sql.DB
	dbs      *database.Service
	textfile string
}

// close releases the connection and exports metrics
func (e *engine) close() {
	if e.textfile != "" {
		if err := e.metrics.WriteTextfile(e.textfile); err != nil {
			e.logger.WithField("error", err.Error()).Warn("Failed to write metrics textfile")
		}
	}
	e.dbs.Close(e.db)
}

func caller() snapshot.Caller {
	return snapshot.Caller{ID: callerID, Role: callerRole}
}

func defaultCallerID() string {
	for _, key := range []string{"GYM_SNAPSHOT_CALLER", "USER", "USERNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "cli"
}

// newEngine loads the configuration, connects to the destination store and
// wires the gated snapshot service.
func newEngine(ctx context.Context, cmd *cobra.Command) (*engine, error) {
	config, err := loadAppConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	logger, err := newLogger(config.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	printer, err := newPrinter(cmd)
	if err != nil {
		return nil, err
	}

	snapLogger, err := snapshot.NewSnapshotLogger(snapshot.LoggerConfig{
		Logger:         logger,
		EnableAuditLog: config.Snapshot.Audit.Enabled,
		AuditLogFile:   config.Snapshot.Audit.File,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", err)
	}

	policy, err := access.NewPolicy(config.Access, logger)
	if err != nil {
		return nil, err
	}

	metrics := snapshot.NewMetrics()
	registry, err := snapshot.DefaultRegistry(catalog.Default(), snapshot.Dialect(config.Database.Driver),
		snapshot.WithSQLLogger(logger),
		snapshot.WithOpsDecorator(metrics.OpsDecorator()),
	)
	if err != nil {
		return nil, err
	}

	provider, err := snapshot.NewStorageProviderFactory().CreateStorageProvider(ctx, config.Snapshot.Storage)
	if err != nil {
		return nil, err
	}

	dbs := database.NewServiceWithLogger(logger)
	db, err := dbs.Connect(ctx, config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %s", config.Database.Target(), apperrors.FormatUserError(err))
	}

	if bootstrap {
		if err := dbs.Bootstrap(ctx, db, registry.CreateTableStatements()); err != nil {
			dbs.Close(db)
			return nil, err
		}
	}

	store := snapshot.NewStore(provider, registry.Catalog(),
		snapshot.WithCompression(config.Snapshot.Compression.Algorithm, config.Snapshot.Compression.Level),
		snapshot.WithStoreLogger(snapLogger),
	)
	serializer := snapshot.NewSerializer(db, registry,
		snapshot.WithDefaultTables(config.Snapshot.Selective.DefaultTables),
		snapshot.WithSerializerLogger(snapLogger),
	)
	orchestrator := snapshot.NewOrchestrator(db, registry,
		snapshot.WithRestoreDefaults(config.Snapshot.Restore.Options()),
		snapshot.WithRestoreLogger(snapLogger),
	)

	service, err := snapshot.NewService(policy, serializer, store, orchestrator,
		snapshot.WithServiceLogger(snapLogger),
		snapshot.WithServiceMetrics(metrics),
	)
	if err != nil {
		dbs.Close(db)
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"store":          store.Describe(),
		"database":       config.Database.Target(),
		"correlation_id": snapLogger.GetCorrelationID(),
	}).Debug("Snapshot engine ready")

	return &engine{
		service:  service,
		registry: registry,
		store:    store,
		provider: provider,
		driver:   config.Database.Driver,
		metrics:  metrics,
		printer:  printer,
		logger:   logger,
		db:       db,
		dbs:      dbs,
		textfile: config.Snapshot.Metrics.Textfile,
	}, nil
}

// withEngine runs fn with an interruptible context and a wired engine
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *engine) error) error {
	ctx, stop := apperrors.InterruptContext(cmd.Context())
	defer stop()

	e, err := newEngine(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	return fn(ctx, e)
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine) error {
		infos, err := e.service.List(ctx, caller())
		if err != nil {
			return err
		}
		return e.printer.SnapshotList(infos)
	})
}

func runSnapshotCreate(cmd *cobra.Command, args []string) error {
	scope, err := parseScope(createScope)
	if err != nil {
		return err
	}
	if scope == snapshot.ScopeFull && (createTenant != "" || len(createTables) > 0) {
		return fmt.Errorf("--tenant and --tables only apply to a seletivo snapshot")
	}

	return withEngine(cmd, func(ctx context.Context, e *engine) error {
		result, err := e.service.Create(ctx, caller(), snapshot.Request{
			Scope:    scope,
			TenantID: createTenant,
			Tables:   createTables,
		})
		if err != nil {
			return err
		}
		return e.printer.SaveResult(result)
	})
}

func runSnapshotDownload(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine) error {
		data, err := e.service.Download(ctx, caller(), args[0])
		if err != nil {
			return err
		}

		if downloadOutput == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(downloadOutput, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", downloadOutput, err)
		}
		e.printer.Success("Snapshot %s written to %s (%s)", args[0], downloadOutput, display.FormatBytes(int64(len(data))))
		return nil
	})
}

func runSnapshotDelete(cmd *cobra.Command, args []string) error {
	if !assumeYes {
		return fmt.Errorf("refusing to delete %s without --yes", args[0])
	}

	return withEngine(cmd, func(ctx context.Context, e *engine) error {
		if err := e.service.Delete(ctx, caller(), args[0]); err != nil {
			return err
		}
		e.printer.Success("Snapshot %s deleted", args[0])
		return nil
	})
}

func runSnapshotRestore(cmd *cobra.Command, args []string) error {
	opts, err := restoreOptions()
	if err != nil {
		return err
	}

	return withEngine(cmd, func(ctx context.Context, e *engine) error {
		result, err := e.service.Restore(ctx, caller(), args[0], opts)
		if err != nil {
			return err
		}
		return e.printer.RestoreResult(result)
	})
}

func runSnapshotRestoreFile(cmd *cobra.Command, args []string) error {
	opts, err := restoreOptions()
	if err != nil {
		return err
	}

	data, err := readInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	return withEngine(cmd, func(ctx context.Context, e *engine) error {
		result, err := e.service.RestoreDocument(ctx, caller(), data, opts)
		if err != nil {
			return err
		}
		return e.printer.RestoreResult(result)
	})
}

func runSnapshotCheck(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine) error {
		version, err := e.dbs.GetVersion(ctx, e.db, e.driver)
		if err != nil {
			return err
		}
		e.printer.Success("Database reachable (%s %s)", e.driver, version)

		if err := snapshot.HealthCheck(ctx, e.provider); err != nil {
			return snapshot.NewStoreIOError(fmt.Sprintf("snapshot store %s failed its health check", e.store.Describe()), err)
		}
		e.printer.Success("Snapshot store reachable (%s)", e.store.Describe())
		return nil
	})
}

func runSnapshotOrder(cmd *cobra.Command, args []string) error {
	printer, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	cat := catalog.Default()
	dependsOn := make(map[string][]string, cat.Len())
	for _, set := range cat.Sets() {
		dependsOn[set.Name] = set.DependsOn
	}
	return printer.Order(cat.Resolver().Order(), dependsOn)
}

func runSnapshotSchema(cmd *cobra.Command, args []string) error {
	dialect := schemaDialect
	if dialect == "" {
		config, err := loadAppConfig()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		dialect = config.Database.Driver
	}

	registry, err := snapshot.DefaultRegistry(catalog.Default(), snapshot.Dialect(dialect))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, stmt := range registry.CreateTableStatements() {
		fmt.Fprintf(out, "%s;\n\n", stmt)
	}
	return nil
}

// restoreOptions turns the restore flags into options; zero values keep the
// configured defaults.
func restoreOptions() (snapshot.RestoreOptions, error) {
	if !assumeYes {
		return snapshot.RestoreOptions{}, fmt.Errorf("restore replaces the store contents; pass --yes to continue")
	}

	opts := snapshot.RestoreOptions{
		MaxWait:     restoreMaxWait,
		MaxDuration: restoreMaxDuration,
	}
	if restoreWipeScope != "" {
		scope, err := snapshot.ParseWipeScope(restoreWipeScope)
		if err != nil {
			return opts, err
		}
		opts.WipeScope = scope
	}
	if opts.MaxWait < 0 || opts.MaxDuration < 0 {
		return opts, fmt.Errorf("--max-wait and --max-duration cannot be negative")
	}
	return opts, nil
}

// parseScope accepts the document names and their English aliases
func parseScope(value string) (snapshot.Scope, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "completo", "full":
		return snapshot.ScopeFull, nil
	case "seletivo", "selective":
		return snapshot.ScopeSelective, nil
	default:
		return "", fmt.Errorf("unknown scope %q (use completo or seletivo)", value)
	}
}

// readInput reads a file, or stdin when path is "-"
func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// describeError renders engine errors with a hint for the common cases
func describeError(err error) string {
	switch snapshot.ErrorTypeOf(err) {
	case snapshot.ErrorTypeAuthorizationDenied:
		return fmt.Sprintf("%v\nhint: use --role with a role allowed by the access policy", err)
	case snapshot.ErrorTypeTimeout:
		return fmt.Sprintf("%v\nhint: raise --max-wait or --max-duration", err)
	case snapshot.ErrorTypeNotFound:
		return fmt.Sprintf("%v\nhint: run 'gym-snapshot snapshot list' for stored names", err)
	default:
		return err.Error()
	}
}
