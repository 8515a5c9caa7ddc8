// Package redis provides the Redis-backed stores of the ingest worker.
//
// A single Client owns the connection pool. On top of it:
//   - Cache[T] stores JSON values under a key prefix with a TTL.
//   - IdentificationStore keeps the format identification results of a workflow
//     between the identification check and later lookups.
//   - IncidentStore keeps open incidents until an operator solves or cancels them.
//   - CachedFormatRepository fronts the format registry.
//
// Example:
//
//	client, err := redis.New(&cfg.Redis, log)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	results, err := redis.NewIdentificationStore(client, cfg.Cache.IdentificationTTL)
package redis
