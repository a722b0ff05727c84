// Package filestag provides one contract for enumerating, reading and
// writing files that live in local directories, ZIP archives and cloud blob
// containers, plus the shared error taxonomy, configuration and caches used
// by every backend.
//
// The root package only defines contracts. Backends live in driver
// subpackages, the enumeration pipeline in package source, the sink factory
// in package sink, the shared archive registry in package archive and the
// value container format in package bundle.
//
// # Storage Backends
//
//   - Local directories (github.com/gobeaver/filestag/driver/disk)
//   - ZIP archives on disk, in memory or fetched remotely (github.com/gobeaver/filestag/driver/zip)
//   - Azure Blob Storage (github.com/gobeaver/filestag/driver/azure)
//   - Amazon S3 (github.com/gobeaver/filestag/driver/s3)
//   - Google Cloud Storage (github.com/gobeaver/filestag/driver/gcs)
//   - SFTP (github.com/gobeaver/filestag/driver/sftp)
//
// The three cloud stores share the paginated backend and sink of
// github.com/gobeaver/filestag/driver/cloud.
//
// # Basic Usage
//
//	src, err := source.Open(ctx, source.Path("./images"),
//	    source.WithSearchMask("*.png"),
//	    source.WithShard(4, workerIndex),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer src.Close()
//
//	it := src.Iterate()
//	defer it.Close()
//	for it.Next(ctx) {
//	    el := it.Element()
//	    fmt.Println(el.Name, len(el.Data))
//	}
//	if err := it.Err(); err != nil {
//	    log.Fatal(err)
//	}
//
// # URIs
//
//	archive://@<identifier>/<path>        registered archive
//	archive://<file>.zip/<path>           archive opened per call
//	blob://<connection>/<container>/<p>   Azure Blob Storage, {{env.NAME}} expanded
//	https://<acct>.blob.core.windows.net/<container>?<sas>   Azure SAS URL
//	s3://<bucket>/<prefix>                Amazon S3
//	gs://<bucket>/<prefix>                Google Cloud Storage
//	sftp://user@host:port/<path>          SFTP
//	http(s)://...                         fetched through a Fetcher
//
// # Errors
//
// All operations return errors wrapping one of the package sentinels,
// usually inside a [PathError] naming the resource:
//
//	if filestag.IsNotExist(err) { ... }
//	if errors.Is(err, filestag.ErrConnection) { ... }
//
// Connection failures are never retried internally.
//
// # Configuration
//
// Defaults can be loaded from the environment with [GetConfig]:
//
//	FILESTAG_PAGE_SIZE=100
//	FILESTAG_TIMEOUT_SECONDS=30
//	FILESTAG_ARCHIVE_COMPRESSION=20
//	FILESTAG_WEB_CACHE_TTL_SECONDS=3600
package filestag
