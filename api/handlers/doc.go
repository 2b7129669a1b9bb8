/*
Package handlers implements the certificate registry HTTP endpoints.

Handler decodes and validates requests, calls the registry service and encodes
the results. It depends only on the Service interface so tests can substitute
the service.

# Routes

  - GET  /health
  - POST /api/university/register
  - POST /api/university/verify
  - GET  /api/university/{address}/status
  - POST /api/certificate/issue (JSON, or multipart with an optional "template" PDF)
  - POST /api/certificate/{id}/revoke
  - GET  /api/certificate/verify/{id}
  - GET  /api/certificate/verify-hash/{hash}
  - GET  /api/certificate/document/{hash}
  - GET  /api/student/{address}/certificates
  - GET  /api/certificates/total

Registry errors are translated to status codes by statusFor. Anything it does
not recognise is a 500 and is logged.
*/
package handlers
