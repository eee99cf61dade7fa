// Command sitehost runs the deployment daemon and talks to it over the
// control API: deploy a directory or JSON file set, list and inspect live
// projects, tear them down, and check daemon health.
package main
