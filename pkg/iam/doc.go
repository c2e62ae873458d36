// Package iam groups the identity and access modules of the gateway:
// tenant directory, user accounts, and authentication/token issuance.
//
// Each module follows the same layout: a domain package with entities,
// error codes and repository ports, an <module>infra package with the
// Postgres/Redis/HTTP adapters, and an <module>srv package with the
// application services. Wiring lives in iamcontainer.
package iam
