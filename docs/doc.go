// Package docs provides generated OpenAPI documentation.
//
// Santagram API
//
//	@title			Santagram API
//	@version		1.0
//	@description	Personalized Santa video API for orders, generation status, and fulfillment webhooks.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/santagram/santagram
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/santagram/serve.go -o ./swagger --parseDependency --parseInternal
