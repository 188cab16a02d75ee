// Package email renders and delivers transactional email.
//
// PostmarkSender sends through Postmark. DevSender writes messages to disk for
// local development and MemorySender records them for tests. Templates are
// embedded html/template and text/template files.
package email
