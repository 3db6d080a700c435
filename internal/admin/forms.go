package admin

// HTML forms for the endpoints a human drives from a browser. The
// POST targets answer in XML like everything else.

const userLockForm = `<html><head><title>Fiveserver admin service</title>
</head><body>
<h3>Enter the username to lock:</h3>
<form name='userlockForm' action='/userlock' method='POST'>
<input name='username' value='' type='text' size='40'/>
<input name='lock' value='lock' type='submit'/>
</form>
</body></html>`

const userKillForm = `<html><head><title>Fiveserver admin service</title>
</head><body>
<h3>Enter the username to delete:</h3>
<p>NOTE: you may be able to restore this user later.</p>
<form name='userkillForm' action='/userkill' method='POST'>
<input name='username' value='' type='text' size='40'/>
<input name='kill' value='delete' type='submit'/>
</form>
</body></html>`

const debugForm = `<html><head><title>Fiveserver admin service</title>
</head><body>
<h3>Set debug value: (currently: %t)</h3>
<form name='debugForm' action='/debug' method='POST'>
<input name='debug' value='' type='text' size='40'/>
<input name='set' value='set' type='submit'/>
</form>
</body></html>`

const maxUsersForm = `<html><head><title>Fiveserver admin service</title>
</head><body>
<h3>Set MaxUsers value: (currently: %d)</h3>
<form name='maxUsersForm' action='/maxusers' method='POST'>
<input name='maxusers' value='' type='text' size='40'/>
<input name='set' value='set' type='submit'/>
</form>
</body></html>`

const storeSettingsForm = `<html><head><title>Fiveserver admin service</title>
</head><body>
<h3>Set store-settings flag value: (currently: %t)</h3>
<form name='settingsForm' action='/settings' method='POST'>
<input name='store' value='' type='text' size='40'/>
<input name='set' value='set' type='submit'/>
</form>
</body></html>`

const banAddForm = `<html><head><title>Fiveserver admin service</title>
<style>span.ip {color:#800;}</style>
</head><body>
<h3>New entry to add to the banned list:</h3>
<p>
<form name='banForm' action='/ban-add' method='POST'>
<input name='entry' value='%s' type='text' size='40'/>
<input name='add' value='add' type='submit'/>
</form>
</p>
<p>
<br />
You can either use specific IP or a network, with or without mask
(specified as bits).<br />Here are some examples:
</p>
<p>
<span class="ip">75.120.4.205</span>
- bans just this one IP<br />
<span class="ip">75.120.4</span>
- bans all IPs in network, specified by 24-bit address:
75.120.4.1 - 75.120.4.255<br />
<span class="ip">75.120.4/24</span>
- same as above<br />
<span class="ip">75.120.4/22</span>
- bans all IPs in network, specified by 22-bit address:
75.120.4.1 - 75.120.7.255<br />
<span class="ip">192.168</span>
- bans all IPs in network, specified by 16-bit address:
192.168.0.1 - 192.168.255.255<br />
<span class="ip">192.168.</span>
- same as above<br />
<span class="ip">192.168.0.0/16</span>
- same as above
</p>
</body></html>`

const banRemoveForm = `<html><head><title>Fiveserver admin service</title>
</head><body>
<h3>Remove this entry from the banned list:</h3>
<form name='banForm' action='/ban-remove' method='POST'>
<input name='entry' value='%s' type='text' size='40'/>
<input name='remove' value='remove' type='submit'/>
</form>
</body></html>`

const serverIPForm = `<html><head><title>Fiveserver admin service</title>
</head><body>
<h3>Current server IP is: %s</h3>
<form name='ipRequeryForm' action='/server-ip' method='POST'>
<input name='requery' value='requery' type='submit'/>
</form>
</body></html>`

const rosterForm = `<html><head><title>Fiveserver admin service</title>
</head><body>
<h3>Edit roster-verification settings</h3>
<form name='rosterSettingsForm' action='/roster' method='POST'>
<table>
<tr>
<td>enforce hash:</td>
<td><input name='enforceHash' value='%t' type='text' size='10'/>
</td></tr>
<tr>
<td>compare hash:</td>
<td><input name='compareHash' value='%t' type='text' size='10'/>
</td></tr>
</table>
<input name='submit' value='submit' type='submit'/>
</form>
</body></html>`
