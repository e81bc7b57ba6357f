// Package admin exposes the server pool over a small JSON REST API.
//
//	GET    /api/servers                             list servers in insertion order
//	POST   /api/servers                             register {"address", "capacity"}
//	DELETE /api/servers?address=                    deregister one server
//	DELETE /api/servers/all                         clear the pool
//	PUT    /api/servers/health?address=&healthy=    override the health flag
//	POST   /api/servers/acquire                     acquire a server
//	POST   /api/servers/release?address=            release a server
//
// Pool errors map to 409 (duplicate), 422 (full), 404 (unknown address) and
// 503 (nothing to acquire).
package admin
