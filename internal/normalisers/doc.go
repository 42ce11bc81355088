// Package normalisers turns raw document bytes into plain text.
//
// Each sub-package handles one format (plaintext, markdown, html, pdf,
// docx). The Registry picks the highest-priority normaliser registered for
// a document's format; RegisterDefaults wires the built-in set.
package normalisers
