// Package snapshot exports the gym application's relational data to portable
// snapshot documents and rebuilds the store from them.
//
// Core Components:
//
// - Registry: closed binding of each cataloged entity set to its table and typed SQL operations
// - Serializer: reads a full or selective (tenant and table filtered) document in one transaction
// - Store: names, lists, saves, loads and deletes snapshot files over a StorageProvider (local, S3, Azure, GCS)
// - Orchestrator: validates a document, wipes in reverse dependency order and recreates in dependency order inside one bounded transaction
// - Service: the access gated facade with audit trail and metrics
//
// Example usage:
//
//	cat := catalog.Default()
//	registry, err := snapshot.DefaultRegistry(cat, snapshot.DialectMySQL)
//	if err != nil {
//		return err
//	}
//
//	provider, err := snapshot.NewLocalStorageProvider(&snapshot.LocalConfig{BasePath: "./snapshots", Permissions: 0755})
//	if err != nil {
//		return err
//	}
//
//	service, err := snapshot.NewService(gate,
//		snapshot.NewSerializer(db, registry),
//		snapshot.NewStore(provider, cat),
//		snapshot.NewOrchestrator(db, registry),
//	)
//	if err != nil {
//		return err
//	}
//
//	saved, err := service.Create(ctx, caller, snapshot.Request{Scope: snapshot.ScopeFull})
//	if err != nil {
//		return fmt.Errorf("snapshot creation failed: %w", err)
//	}
//
//	result, err := service.Restore(ctx, caller, saved.Name, snapshot.RestoreOptions{})
//	if err != nil {
//		return fmt.Errorf("restore failed: %w", err)
//	}
package snapshot
