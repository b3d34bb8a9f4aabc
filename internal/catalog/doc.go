// Package catalog defines the platform catalog and rating records exchanged
// between the sync pipeline stages, plus the diff engine that compares two
// catalog snapshots.
package catalog
