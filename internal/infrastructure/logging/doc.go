// Package logging builds the zap root logger of a shellhost command.
//
// Production mode writes JSON, development mode writes colored console
// lines. LOG_OUTPUT picks the sink: attach forces stderr because its stdout
// is the shell session itself.
//
//	logger, err := logging.New(cfg.Logging, "serve")
//	if err != nil {
//		return err
//	}
//	defer logger.Close()
//	logger.Named("window").Info("Window created", zap.String("channel", ch))
package logging
