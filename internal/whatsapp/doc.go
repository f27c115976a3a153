// Package whatsapp speaks the WhatsApp Cloud API: it parses inbound webhook
// payloads and sends reply descriptors as text, button and list messages.
package whatsapp
