// Package logger provides a singleton Zap logger with context-based scoping,
// plus the access logger that records one line per proxied request.
//
// # Design Decisions
//
//   - Singleton: Una sola instancia global inicializada con Init().
//   - Context Scoping: Cada request lleva su propio logger "scoped" con
//     request_id y rpc_method sin crear un nuevo core.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//   - Access log: logger separado (JSON) hacia stdout o un archivo rotado con
//     lumberjack. Se apaga con output "none".
//   - Las API keys solo se loguean enmascaradas (APIKey).
//
// # Usage
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{Env: cfg.Logs.Env, Level: cfg.Logs.Level})
//	defer logger.Sync()
//
// En middlewares (con contexto):
//
//	log := logger.From(ctx)
//	log.Warn("rate limiter unavailable", logger.Err(err))
package logger
