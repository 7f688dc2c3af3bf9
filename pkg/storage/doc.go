// Package storage manages the media directory of an account.
//
// Filenames are derived from the account and shortcode:
//
//	natgeo - BxY12abc.jpg
//	natgeo - BxY12abc (2).mp4   // second slide of a carousel
//
// Files are written to a temporary name, sniffed with filetype so that
// non-media responses never land under a media name, and then renamed into
// place.
package storage
