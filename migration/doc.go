// Package migration implements the dual-path failover router that sits in
// front of the legacy and enterprise chat adapters during a transport
// migration.
//
// The routing decision is a pure function of the configured mode and the
// useEnterpriseAdapter feature flag. The only automatic recovery in the
// whole system lives here: a failed message send gets exactly one legacy
// retry, which activates a sticky fallback that keeps traffic on the
// legacy path until an explicit SwitchMode call. Typing, online status and
// presence degrade silently, mirroring the adapters' error asymmetry.
//
// Comparative latency is smoothed with (old+new)/2 on each successful
// send. That formula is intentionally simple and is part of the component
// contract; dashboards and cutover thresholds are built against it.
package migration
