// Package mongo connects to MongoDB with the official v2 driver.
package mongo
