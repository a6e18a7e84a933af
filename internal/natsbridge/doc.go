// Package natsbridge is the NATS binding of the camera command surface.
//
// # Architecture
//
//   - Server: optional embedded NATS server (camctl serve --nats-embedded)
//   - Bridge: answers command requests with a commands dispatcher and
//     forwards camera events from the event bus
//   - Client: request/reply helper used by camctl call and the tests
//
// # Subject Hierarchy
//
//	camctl.control.{method}               # command request/reply
//	camctl.cameras.{texture_id}.events    # camera events (bridge → subscribers)
//
// Requests carry the JSON arguments of the method, or nothing. Replies are
// either {"result": ...} or {"error": {"code": ..., "message": ...}}.
// Core NATS only, no JetStream; events published while nobody listens are lost.
//
// # Debugging with nats CLI
//
// Watch every camera event:
//
//	nats sub "camctl.cameras.>"
//
// Open the back camera and take a picture:
//
//	nats req camctl.control.initialize '{"cameraName":"0","resolutionPreset":"high"}'
//	nats req camctl.control.takePicture '{"path":"/tmp/a.jpg"}'
package natsbridge
