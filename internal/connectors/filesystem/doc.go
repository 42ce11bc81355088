// Package filesystem loads documentation files from local directories and
// watches them for changes. It implements the DocumentSource port used by
// `docqa add` and `docqa watch`.
package filesystem
