// Package logger provee el logger zap del proxy con scoping por contexto.
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
// En controllers/services:
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Video"))
//	log.Warn("upstream failed", logger.BVID(bvid), logger.Err(err))
package logger
