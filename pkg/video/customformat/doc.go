// Package customformat reads and writes recordings in the
// meta/mdat format that the replay source feeds to the recorder.
package customformat

// A recording is two files written side by side so that
// samples are readable as soon as they are written and a
// crash never leaves more than the last sample unusable.
// B-frames are supported through separate PTS and DTS.
//
// <name>.mdat: continuous chunks of raw media data.
//   []byte
//
// <name>.meta:
//   version         uint8
//   videoSPSSize    uint16
//   videoSPS        []byte
//   videoPPSSize    uint16
//   videoPPS        []byte
//   audioConfigSize uint16
//   audioConfig     []byte
//   startTimeNS     int64
//   samples         []sampleV0
//
// sampleV0 { // 33 bytes. Timestamps are UnixNano.
//   flags  uint8 { isAudioSample, isSyncSample }
//   pts    int64
//   dts    int64  // Unused for audio.
//   next   int64  // nextPTS for audio, nextDTS for video.
//   offset uint32 // Position of the data in the mdat file.
//   size   uint32
// }
