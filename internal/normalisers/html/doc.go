// Package html provides a Normaliser for HTML documents. Pages are parsed
// with golang.org/x/net/html and reduced to their visible text; scripts,
// styles and the document head are dropped.
package html
