package buddy

import "errors"

// ErrZoneGone is returned by Arena.PageBytes once the arena has been torn
// down; Zone.IsolateFree reports that case as a plain false — the stand-in
// for SPEC_FULL's Open Question 3 (a zone encountered mid-scan that has
// just been hot-unplugged).
var ErrZoneGone = errors.New("buddy: zone backing store is gone")
