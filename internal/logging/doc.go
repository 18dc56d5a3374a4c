// Package logging writes and reads the structured log of a labelflow run.
//
// Logs are JSON lines produced by log/slog. Each workflow component tags its
// lines through a child logger, so a single file can be sliced afterwards by
// folder, job, phase or component:
//
//	logger, err := logging.NewRotatingLogger(dir, logging.LevelInfo, logging.DefaultRotationConfig())
//	if err != nil {
//		return err
//	}
//	defer logger.Close()
//
//	log := logger.WithFolder(folderID).WithPhase("synchronize")
//	log.Info("categories synchronized", "categories", n)
//
// # Rotation
//
// NewRotatingLogger writes through a RotatingWriter. When labelflow.log would
// grow past MaxSizeMB it becomes labelflow.log.1, older backups shift up and
// anything past MaxBackups is removed. With Compress set the backups are
// gzipped.
//
// # Reading logs back
//
// ReadLogs parses labelflow.log and its uncompressed backups into Entry values
// ordered by time. FilterEntries narrows them and Export renders them as json,
// text or csv. The "labelflow logs" command is a thin wrapper over these.
package logging
