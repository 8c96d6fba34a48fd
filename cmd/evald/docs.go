package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           evald API
// @version         1.0
// @description     HTTP API for backend resolution, parallelism planning and batch generation.
//
// @contact.name   evald maintainers
// @contact.url    https://github.com/your-org/evald
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
